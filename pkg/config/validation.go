package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/marmos91/resolvd/internal/telemetry"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// validatorInstance returns the shared validator. Field names in errors are
// the YAML keys, so messages match what users write in the config file.
func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return f.Name
			}
			return name
		})
	})
	return validate
}

// Validate checks struct tags and the cross-field rules tags cannot express.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("configuration is nil")
	}

	var errs []error
	if err := validatorInstance().Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, fieldError(fe))
		}
	}

	if cfg.RPC.Auth.Enabled && len(cfg.RPC.Auth.GetSecret()) < 32 {
		errs = append(errs, errors.New("rpc.auth.secret: must be at least 32 characters when auth is enabled"))
	}
	if cfg.Metrics.Enabled && cfg.API.IsEnabled() && cfg.Metrics.Port == cfg.API.Port {
		errs = append(errs, fmt.Errorf("metrics.port: %d is already used by api.port", cfg.Metrics.Port))
	}
	if cfg.API.IsEnabled() && cfg.API.Port == cfg.RPC.Port {
		errs = append(errs, fmt.Errorf("api.port: %d is already used by rpc.port", cfg.API.Port))
	}
	if cfg.Telemetry.Profiling.Enabled {
		if err := telemetry.ValidateProfileTypes(cfg.Telemetry.Profiling.ProfileTypes); err != nil {
			errs = append(errs, fmt.Errorf("telemetry.profiling.profile_types: %w", err))
		}
	}
	return errors.Join(errs...)
}

// fieldError renders a validation failure as "<yaml.path>: <rule>".
func fieldError(fe validator.FieldError) error {
	// Namespace is "Config.rpc.port"; drop the root type name.
	path := fe.Namespace()
	if _, rest, ok := strings.Cut(path, "."); ok {
		path = rest
	}
	if fe.Param() != "" {
		return fmt.Errorf("%s: failed %s=%s (value %v)", path, fe.Tag(), fe.Param(), fe.Value())
	}
	return fmt.Errorf("%s: failed %s", path, fe.Tag())
}
