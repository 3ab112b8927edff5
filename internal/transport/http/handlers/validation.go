package handlers

import (
	"fmt"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/arklim/abac-auth-service/internal/authz"
	"github.com/arklim/abac-auth-service/internal/core/domain"
)

var (
	registerOnce sync.Once
	registerErr  error
)

// RegisterValidators installs the binding tags used by the policy and condition
// payloads on gin's validator. It is safe to call more than once.
func RegisterValidators() error {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			registerErr = fmt.Errorf("unexpected binding engine %T", binding.Validator.Engine())
			return
		}

		validators := map[string]validator.Func{
			"condition_type": func(fl validator.FieldLevel) bool {
				return domain.ConditionValueType(fl.Field().String()).Valid()
			},
			"condition_operation": func(fl validator.FieldLevel) bool {
				return domain.ConditionOperation(fl.Field().String()).Valid()
			},
			"operand_type": func(fl validator.FieldLevel) bool {
				return domain.OperandType(fl.Field().String()).Valid()
			},
			"action_key": func(fl validator.FieldLevel) bool {
				_, _, ok := authz.SplitActionKey(fl.Field().String(), domain.AllResources())
				return ok
			},
		}
		for tag, fn := range validators {
			if err := v.RegisterValidation(tag, fn); err != nil {
				registerErr = fmt.Errorf("register %s validator: %w", tag, err)
				return
			}
		}
	})
	return registerErr
}

func mustRegisterValidators() {
	if err := RegisterValidators(); err != nil {
		panic(err)
	}
}
