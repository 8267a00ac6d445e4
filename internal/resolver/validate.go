package resolver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"flavorwise/internal/core"
)

var validate = validator.New()

// Validate checks a FindRequest's fields and the rules of its mode.
func Validate(req core.FindRequest) error {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed on %q", fieldName(fe), fe.Tag()))
			}
			return core.NewInvalidArgumentError("invalid request: "+strings.Join(msgs, "; "), err)
		}
		return core.NewInvalidArgumentError("invalid request", err)
	}
	if _, err := core.ParseCloudType(string(req.CloudType)); err != nil {
		return err
	}

	specs := req.FamilySpecs
	switch req.Mode {
	case core.ModeCurrent:
		if specs.SourceFlavorID == "" {
			return core.NewInvalidArgumentError("current mode requires family_specs.source_flavor_id", nil)
		}
	case core.ModeSearchRelevant:
		if specs.SourceFlavorID == "" {
			return core.NewInvalidArgumentError("search_relevant mode requires family_specs.source_flavor_id", nil)
		}
	}
	if req.Mode != core.ModeCurrent {
		if specs.CPUMax > 0 && specs.CPUMin > specs.CPUMax {
			return core.NewInvalidArgumentError(fmt.Sprintf("cpu_min %d exceeds cpu_max %d", specs.CPUMin, specs.CPUMax), nil)
		}
		if specs.RAMMax > 0 && specs.RAMMin > specs.RAMMax {
			return core.NewInvalidArgumentError(fmt.Sprintf("ram_min %d exceeds ram_max %d", specs.RAMMin, specs.RAMMax), nil)
		}
	}
	if req.Region == "" && req.CloudType != core.CloudNebius {
		return core.NewInvalidArgumentError("region is required", nil)
	}
	return nil
}

func fieldName(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	return ns
}
