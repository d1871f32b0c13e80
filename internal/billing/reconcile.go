package billing

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Money rounds d to two fractional digits.
func Money(d decimal.Decimal) decimal.Decimal { return d.Round(2) }

// SumPayments totals payment amounts.
func SumPayments(payments []CustomerPayment) decimal.Decimal {
	total := decimal.Zero
	for _, p := range payments {
		total = total.Add(p.Amount)
	}
	return Money(total)
}

// SumBills totals vendor bill amounts, optionally only the paid ones.
func SumBills(bills []VendorBill, paidOnly bool) decimal.Decimal {
	total := decimal.Zero
	for _, b := range bills {
		if paidOnly && !b.IsPaid() {
			continue
		}
		total = total.Add(b.BillAmount)
	}
	return Money(total)
}

// BalanceAmount is what the customer still owes, never negative.
func BalanceAmount(total, paid decimal.Decimal) decimal.Decimal {
	balance := total.Sub(paid)
	if balance.IsNegative() {
		return decimal.Zero
	}
	return Money(balance)
}

// CustomerPaymentStatus derives the customer side status: paid once nothing
// is owed, partial while some but not all was received, pending otherwise.
func CustomerPaymentStatus(total, paid decimal.Decimal) PaymentStatus {
	switch {
	case total.Sub(paid).LessThanOrEqual(decimal.Zero):
		return PaymentPaid
	case paid.IsPositive():
		return PaymentPartial
	default:
		return PaymentPending
	}
}

// VendorPaymentStatus derives the supplier side status. An invoice without
// bills is pending.
func VendorPaymentStatus(bills []VendorBill) PaymentStatus {
	paid := 0
	for _, b := range bills {
		if b.IsPaid() {
			paid++
		}
	}
	switch {
	case len(bills) == 0, paid == 0:
		return PaymentPending
	case paid == len(bills):
		return PaymentPaid
	default:
		return PaymentPartial
	}
}

// Profit is the invoice total less every vendor bill.
func Profit(total decimal.Decimal, bills []VendorBill) decimal.Decimal {
	return Money(total.Sub(SumBills(bills, false)))
}

// ProfitMargin is profit as a percentage of total, zero for a zero total.
func ProfitMargin(total, profit decimal.Decimal) decimal.Decimal {
	if total.IsZero() {
		return decimal.Zero
	}
	return profit.Div(total).Mul(hundred).Round(2)
}

// Reconciliation is the derived state written back to an invoice.
type Reconciliation struct {
	Balance        decimal.Decimal
	CustomerStatus PaymentStatus
	VendorStatus   PaymentStatus
}

// Reconcile derives the invoice columns from its children.
func Reconcile(total decimal.Decimal, payments []CustomerPayment, bills []VendorBill) Reconciliation {
	paid := SumPayments(payments)
	return Reconciliation{
		Balance:        BalanceAmount(total, paid),
		CustomerStatus: CustomerPaymentStatus(total, paid),
		VendorStatus:   VendorPaymentStatus(bills),
	}
}

// Apply copies r onto inv.
func (r Reconciliation) Apply(inv *Invoice) {
	inv.BalanceAmount = r.Balance
	inv.CustomerPaymentStatus = r.CustomerStatus
	inv.VendorPaymentStatus = r.VendorStatus
}

// Summarize totals the cost lines of a lead.
func Summarize(costs []LeadCost) CostSummary {
	sum := CostSummary{
		Amount:       decimal.Zero,
		VendorAmount: decimal.Zero,
		VendorPaid:   decimal.Zero,
		VendorUnpaid: decimal.Zero,
	}
	for _, c := range costs {
		sum.Amount = sum.Amount.Add(c.Amount)
		sum.VendorAmount = sum.VendorAmount.Add(c.VendorAmount)
		if c.IsPaid {
			sum.VendorPaid = sum.VendorPaid.Add(c.VendorAmount)
		} else {
			sum.VendorUnpaid = sum.VendorUnpaid.Add(c.VendorAmount)
		}
	}
	sum.Amount = Money(sum.Amount)
	sum.VendorAmount = Money(sum.VendorAmount)
	sum.VendorPaid = Money(sum.VendorPaid)
	sum.VendorUnpaid = Money(sum.VendorUnpaid)
	sum.Profit = Money(sum.Amount.Sub(sum.VendorAmount))
	return sum
}
