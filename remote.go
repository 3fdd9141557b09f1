// remote.go: Pluggable remote sources of state key values
//
// Providers are registered per URL scheme and selected automatically:
//
//	statekeys.RegisterProvider(&MyConsulProvider{})
//	values, err := statekeys.LoadRemoteValues(ctx, "consul://localhost:8500/player", nil)
//
// A provider for "file" URLs is always registered.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package statekeys

import (
	"context"
	goerrors "errors"
	"fmt"
	"net/url"
	"os"
	"reflect"
	"sync"
	"time"

	"github.com/agilira/go-errors"
)

// ValuesProvider loads values for an object from a remote source.
type ValuesProvider interface {
	// Name returns a human-readable name for this provider
	Name() string

	// Scheme returns the URL scheme this provider handles
	Scheme() string

	// Load fetches the current values
	Load(ctx context.Context, sourceURL string) (map[string]interface{}, error)

	// Watch streams new values as they change. Providers without native
	// change notification return nil, nil and are polled instead.
	Watch(ctx context.Context, sourceURL string) (<-chan map[string]interface{}, error)

	// Validate checks that the provider can handle the URL
	Validate(sourceURL string) error
}

// RemoteOptions controls remote loading and watching.
type RemoteOptions struct {
	// Timeout bounds a whole load, retries included. Default: 30s
	Timeout time.Duration

	// RetryAttempts after the first failed load. Default: 3
	RetryAttempts int

	// RetryDelay between attempts. Default: 1s
	RetryDelay time.Duration

	// WatchInterval is the polling period for providers without Watch. Default: 30s
	WatchInterval time.Duration
}

// DefaultRemoteOptions returns the default remote options.
func DefaultRemoteOptions() *RemoteOptions {
	return &RemoteOptions{
		Timeout:       30 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    time.Second,
		WatchInterval: 30 * time.Second,
	}
}

func (o *RemoteOptions) withDefaults() *RemoteOptions {
	defaults := DefaultRemoteOptions()
	if o == nil {
		return defaults
	}
	options := *o
	if options.Timeout <= 0 {
		options.Timeout = defaults.Timeout
	}
	if options.RetryAttempts < 0 {
		options.RetryAttempts = 0
	}
	if options.RetryDelay <= 0 {
		options.RetryDelay = defaults.RetryDelay
	}
	if options.WatchInterval <= 0 {
		options.WatchInterval = defaults.WatchInterval
	}
	return &options
}

// Global registry of value providers
var (
	providers   []ValuesProvider
	providersMu sync.RWMutex
)

func init() {
	_ = RegisterProvider(fileProvider{})
}

// RegisterProvider registers a provider. Duplicate schemes are rejected.
func RegisterProvider(provider ValuesProvider) error {
	if provider == nil {
		return errors.New(ErrCodeInvalidConfig, "values provider cannot be nil")
	}
	scheme := provider.Scheme()
	if scheme == "" {
		return errors.New(ErrCodeInvalidConfig, "values provider scheme cannot be empty")
	}

	providersMu.Lock()
	defer providersMu.Unlock()

	for _, existing := range providers {
		if existing.Scheme() == scheme {
			return errors.New(ErrCodeInvalidConfig,
				fmt.Sprintf("values provider for scheme '%s' already registered", scheme))
		}
	}
	providers = append(providers, provider)
	return nil
}

// UnregisterProvider removes the provider for scheme and reports whether
// one was registered.
func UnregisterProvider(scheme string) bool {
	providersMu.Lock()
	defer providersMu.Unlock()

	for i, p := range providers {
		if p.Scheme() == scheme {
			providers = append(providers[:i], providers[i+1:]...)
			return true
		}
	}
	return false
}

// GetProvider returns the provider registered for scheme.
func GetProvider(scheme string) (ValuesProvider, error) {
	providersMu.RLock()
	defer providersMu.RUnlock()

	for _, p := range providers {
		if p.Scheme() == scheme {
			return p, nil
		}
	}
	return nil, errors.New(ErrCodeInvalidConfig,
		fmt.Sprintf("no values provider registered for scheme '%s'", scheme))
}

// ListProviders returns a copy of the registered providers.
func ListProviders() []ValuesProvider {
	providersMu.RLock()
	defer providersMu.RUnlock()

	out := make([]ValuesProvider, len(providers))
	copy(out, providers)
	return out
}

// providerFor resolves and validates the provider for sourceURL.
func providerFor(sourceURL string) (ValuesProvider, error) {
	if sourceURL == "" {
		return nil, errors.New(ErrCodeInvalidConfig, "source URL cannot be empty")
	}
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig, "invalid source URL")
	}
	if parsed.Scheme == "" {
		return nil, errors.New(ErrCodeInvalidConfig, "source URL must have a scheme")
	}

	provider, err := GetProvider(parsed.Scheme)
	if err != nil {
		return nil, err
	}
	if err := provider.Validate(sourceURL); err != nil {
		return nil, errors.Wrap(err, ErrCodeInvalidConfig, "source URL rejected by provider").
			WithContext("provider", provider.Name())
	}
	return provider, nil
}

// permanentError marks a failure that retrying cannot fix.
type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent wraps err so LoadRemoteValues stops retrying on it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func shouldStopRetrying(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, context.Canceled) || goerrors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var perm permanentError
	return goerrors.As(err, &perm)
}

// LoadRemoteValues loads values from sourceURL, retrying transient failures.
func LoadRemoteValues(ctx context.Context, sourceURL string, opts *RemoteOptions) (map[string]interface{}, error) {
	provider, err := providerFor(sourceURL)
	if err != nil {
		return nil, err
	}
	return loadWithRetries(ctx, provider, sourceURL, opts.withDefaults())
}

func loadWithRetries(ctx context.Context, provider ValuesProvider, sourceURL string, options *RemoteOptions) (map[string]interface{}, error) {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, options.Timeout)
	defer cancel()

	var values map[string]interface{}
	var lastErr error
	attempts := 0

	for attempt := 0; attempt <= options.RetryAttempts; attempt++ {
		if attempt > 0 {
			if err := waitForRetry(ctxWithTimeout, options.RetryDelay); err != nil {
				return nil, err
			}
		}
		attempts++

		values, lastErr = provider.Load(ctxWithTimeout, sourceURL)
		if lastErr == nil || shouldStopRetrying(lastErr) {
			break
		}
	}

	if lastErr != nil {
		return nil, errors.Wrap(lastErr, ErrCodeRemoteError, "failed to load remote values").
			WithContext("provider", provider.Name()).
			WithContext("attempts", attempts)
	}
	if values == nil {
		return nil, errors.New(ErrCodeRemoteError, "values provider returned nil values").
			WithContext("provider", provider.Name())
	}
	return values, nil
}

func waitForRetry(ctx context.Context, delay time.Duration) error {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), ErrCodeRemoteError, "context canceled during retry")
	}
}

// WatchRemoteValues streams values from sourceURL until ctx is done. The
// first value on the channel is the current content of the source.
func WatchRemoteValues(ctx context.Context, sourceURL string, opts *RemoteOptions) (<-chan map[string]interface{}, error) {
	provider, err := providerFor(sourceURL)
	if err != nil {
		return nil, err
	}

	ch, err := provider.Watch(ctx, sourceURL)
	if err != nil {
		return nil, errors.Wrap(err, ErrCodeRemoteError, "failed to start watching remote values").
			WithContext("provider", provider.Name())
	}
	if ch != nil {
		return ch, nil
	}
	return startPolling(ctx, provider, sourceURL, opts.withDefaults()), nil
}

func startPolling(ctx context.Context, provider ValuesProvider, sourceURL string, options *RemoteOptions) <-chan map[string]interface{} {
	out := make(chan map[string]interface{}, 1)

	go func() {
		defer close(out)

		ticker := time.NewTicker(options.WatchInterval)
		defer ticker.Stop()

		var last map[string]interface{}
		poll := func() bool {
			values, err := provider.Load(ctx, sourceURL)
			if err != nil || reflect.DeepEqual(values, last) {
				return true
			}
			last = values
			select {
			case out <- values:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !poll() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !poll() {
					return
				}
			}
		}
	}()

	return out
}

// FollowRemote applies every version of sourceURL to obj on loop, until
// the returned stop function is called or ctx is done. onApplied runs on
// the loop goroutine after each resulting batch is published.
func FollowRemote(ctx context.Context, loop *Loop, obj *Object, sourceURL string, opts *RemoteOptions, onApplied func(Batch)) (stop func(), err error) {
	if loop == nil || obj == nil {
		return nil, errors.New(ErrCodeInvalidConfig, "following a remote source requires a loop and an object")
	}

	watchCtx, cancel := context.WithCancel(ctx)
	ch, err := WatchRemoteValues(watchCtx, sourceURL, opts)
	if err != nil {
		cancel()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for values := range ch {
			v := values
			if err := loop.Dispatch(func() {
				if !obj.IsDisposed() {
					obj.SetAll(v, onApplied)
				}
			}); err != nil {
				cancel()
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}, nil
}

// fileProvider serves "file" URLs by reading a JSON or YAML values file.
type fileProvider struct{}

func (fileProvider) Name() string   { return "File values provider" }
func (fileProvider) Scheme() string { return "file" }

func (fileProvider) path(sourceURL string) (string, Format, error) {
	parsed, err := url.Parse(sourceURL)
	if err != nil {
		return "", FormatUnknown, err
	}
	path := parsed.Path
	if path == "" {
		path = parsed.Opaque
	}
	absPath, err := validatePath(path)
	if err != nil {
		return "", FormatUnknown, err
	}
	format := DetectFormat(absPath)
	if format == FormatUnknown {
		return "", FormatUnknown, errors.New(ErrCodeUnsupportedFormat, "cannot detect values format from extension").
			WithContext("path", path)
	}
	return absPath, format, nil
}

func (p fileProvider) Validate(sourceURL string) error {
	_, _, err := p.path(sourceURL)
	return err
}

func (p fileProvider) Load(_ context.Context, sourceURL string) (map[string]interface{}, error) {
	path, format, err := p.path(sourceURL)
	if err != nil {
		return nil, Permanent(err)
	}
	data, err := os.ReadFile(path) // #nosec G304 -- path validated above
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Permanent(err)
		}
		return nil, err
	}
	values, err := ParseValues(data, format)
	if err != nil {
		return nil, Permanent(err)
	}
	return values, nil
}

func (fileProvider) Watch(context.Context, string) (<-chan map[string]interface{}, error) {
	return nil, nil
}
