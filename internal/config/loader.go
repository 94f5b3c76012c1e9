package config

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is returned by LoadConfig. Type tells which stage failed.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

const (
	// DATABASE_URL_SSM_PARAM=/prod/gardenwatch/database/url fills DATABASE_URL.
	ssmParamSuffix = "_SSM_PARAM"

	// localEnv never talks to SSM.
	localEnv = "local"

	ssmTimeout = 30 * time.Second
)

// loaderDeps abstracts the process environment so tests can load without
// touching global state.
type loaderDeps struct {
	lookupEnv func(key string) (string, bool)
	setEnv    func(key, value string) error
	environ   func() []string
}

func defaultDeps() loaderDeps {
	return loaderDeps{
		lookupEnv: os.LookupEnv,
		setEnv:    os.Setenv,
		environ:   os.Environ,
	}
}

// LoadConfig builds the Config from, in priority order, the process
// environment, a .env file in the working directory and SSM parameters named
// by *_SSM_PARAM pointers. SSM is skipped when APP_ENV is "local", so the
// provider may be nil there or when no pointer is set.
//
// The process clock is pinned to UTC; calendar logic always uses the
// configured garden timezone explicitly.
func LoadConfig(provider SecretProvider) (*Config, error) {
	return loadConfigWithDeps(provider, defaultDeps())
}

func loadConfigWithDeps(provider SecretProvider, deps loaderDeps) (*Config, error) {
	time.Local = time.UTC

	// godotenv never overrides variables that are already set.
	_ = godotenv.Load()

	if appEnv, _ := deps.lookupEnv("APP_ENV"); appEnv != localEnv {
		if err := resolveSSMParams(provider, deps); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		typ, msg := ErrParsing, "failed to process environment configuration"
		if strings.HasPrefix(err.Error(), "required key") {
			typ, msg = ErrMissingEnv, "required environment variable is not set"
		}
		return nil, &ConfigError{Type: typ, Message: msg, Err: err}
	}
	cfg.Build = NewBuildInfo()

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs the struct rules plus the checks tags cannot express: FCM
// credentials and a loadable timezone.
func Validate(cfg *Config) error {
	validate := validator.New()
	validate.RegisterStructValidation(validateDispatch, DispatchConfig{})
	if err := validate.Struct(cfg); err != nil {
		return &ConfigError{Type: ErrValidation, Message: "configuration validation failed", Err: err}
	}
	if _, err := time.LoadLocation(cfg.Scheduler.Timezone); err != nil {
		return &ConfigError{
			Type:    ErrValidation,
			Message: fmt.Sprintf("unknown timezone %q", cfg.Scheduler.Timezone),
			Err:     err,
		}
	}
	return nil
}

func validateDispatch(sl validator.StructLevel) {
	d := sl.Current().Interface().(DispatchConfig)
	if d.Provider == "fcm" && d.FCMCredentialsFile == "" && d.FCMCredentialsBase64.Empty() {
		sl.ReportError(d.FCMCredentialsFile, "FCMCredentialsFile", "FCMCredentialsFile", "required_with_fcm", "")
	}
}

// ssmBindings maps each SSM path to the variable it fills. Pointers whose
// target is already set, or whose path is empty, are ignored.
func ssmBindings(deps loaderDeps) map[string]string {
	bindings := map[string]string{}
	for _, entry := range deps.environ() {
		key, path, ok := strings.Cut(entry, "=")
		if !ok || path == "" || !strings.HasSuffix(key, ssmParamSuffix) {
			continue
		}
		target := strings.TrimSuffix(key, ssmParamSuffix)
		if _, set := deps.lookupEnv(target); set {
			continue
		}
		bindings[path] = target
	}
	return bindings
}

// resolveSSMParams fetches every pending pointer in one batch and exports the
// values so envconfig picks them up.
func resolveSSMParams(provider SecretProvider, deps loaderDeps) error {
	bindings := ssmBindings(deps)
	if len(bindings) == 0 {
		return nil
	}

	paths := make([]string, 0, len(bindings))
	for path := range bindings {
		paths = append(paths, path)
	}
	slices.Sort(paths)

	if provider == nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: "a secret provider is required to resolve " + strings.Join(targets(bindings, paths), ", "),
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), ssmTimeout)
	defer cancel()
	resolved, err := provider.GetParametersBatch(ctx, paths)
	if err != nil {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: fmt.Sprintf("failed to resolve %d SSM parameters", len(paths)),
			Err:     err,
		}
	}

	var missing []string
	for _, path := range paths {
		value, ok := resolved[path]
		if !ok {
			missing = append(missing, bindings[path])
			continue
		}
		if err := deps.setEnv(bindings[path], value); err != nil {
			return &ConfigError{
				Type:    ErrSSMResolution,
				Message: "failed to export " + bindings[path],
				Err:     err,
			}
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrSSMResolution,
			Message: "SSM parameters not found for " + strings.Join(missing, ", "),
		}
	}
	return nil
}

func targets(bindings map[string]string, paths []string) []string {
	out := make([]string, len(paths))
	for i, path := range paths {
		out[i] = bindings[path]
	}
	return out
}
