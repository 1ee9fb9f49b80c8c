package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jacoelho/validatecache/errors"
)

// ApplyEnvOverrides applies environment variable overrides to cfg and
// returns the names of the variables that took effect.
// Pattern: VALIDATECACHE_[SECTION]_[KEY] (e.g., VALIDATECACHE_LOG_LEVEL).
// Setting VALIDATECACHE_HISTORY_PATH also enables history unless
// VALIDATECACHE_HISTORY_ENABLED says otherwise. Empty values are ignored.
// The first boolean or duration that does not parse is returned as a
// CodeConfig error; the remaining overrides are still applied.
func ApplyEnvOverrides(cfg *Config) ([]string, error) {
	var (
		applied []string
		errs    []error
	)
	track := func(key string, ok bool, err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		if ok {
			applied = append(applied, key)
		}
	}
	str := func(target *string, key string) {
		track(key, setEnvString(target, key), nil)
	}
	boolean := func(target *bool, key string) {
		ok, err := setEnvBool(target, key)
		track(key, ok, err)
	}
	duration := func(target *time.Duration, key string) {
		ok, err := setEnvDuration(target, key)
		track(key, ok, err)
	}

	str(&cfg.Log.Level, "VALIDATECACHE_LOG_LEVEL")
	str(&cfg.Log.Format, "VALIDATECACHE_LOG_FORMAT")

	str(&cfg.Cache.FileMode, "VALIDATECACHE_CACHE_FILE_MODE")
	boolean(&cfg.Cache.HugeDocuments, "VALIDATECACHE_CACHE_HUGE_DOCUMENTS")

	duration(&cfg.Schema.HTTPTimeout, "VALIDATECACHE_SCHEMA_HTTP_TIMEOUT")

	if setEnvString(&cfg.History.Path, "VALIDATECACHE_HISTORY_PATH") {
		track("VALIDATECACHE_HISTORY_PATH", true, nil)
		cfg.History.Enabled = true
	}
	boolean(&cfg.History.Enabled, "VALIDATECACHE_HISTORY_ENABLED")
	duration(&cfg.History.BusyTimeout, "VALIDATECACHE_HISTORY_BUSY_TIMEOUT")

	str(&cfg.Metrics.Textfile, "VALIDATECACHE_METRICS_TEXTFILE")

	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.Format = strings.ToLower(strings.TrimSpace(cfg.Log.Format))
	if len(errs) > 0 {
		return applied, errs[0]
	}
	return applied, nil
}

func lookupEnv(key string) (string, bool) {
	val, ok := os.LookupEnv(key)
	val = strings.TrimSpace(val)
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

func setEnvString(target *string, key string) bool {
	val, ok := lookupEnv(key)
	if !ok {
		return false
	}
	*target = val
	return true
}

func setEnvBool(target *bool, key string) (bool, error) {
	val, ok := lookupEnv(key)
	if !ok {
		return false, nil
	}
	b, err := strconv.ParseBool(strings.ToLower(val))
	if err != nil {
		return false, errors.Newf(errors.CodeConfig, "apply env", key, "%q is not a boolean", val)
	}
	*target = b
	return true, nil
}

func setEnvDuration(target *time.Duration, key string) (bool, error) {
	val, ok := lookupEnv(key)
	if !ok {
		return false, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return false, errors.Newf(errors.CodeConfig, "apply env", key, "%q is not a duration", val)
	}
	*target = d
	return true, nil
}
