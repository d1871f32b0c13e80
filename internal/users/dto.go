package users

type CreateUserRequest struct {
	Name      string `json:"name" validate:"required,max=200"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	Role      string `json:"role" validate:"required"`
	IsManager bool   `json:"is_manager"`
}

type UpdateUserRequest struct {
	Name      *string `json:"name,omitempty" validate:"omitempty,max=200"`
	Role      *string `json:"role,omitempty"`
	IsManager *bool   `json:"is_manager,omitempty"`
	IsActive  *bool   `json:"is_active,omitempty"`
	Password  *string `json:"password,omitempty" validate:"omitempty,min=8,max=72"`
}
