package secrets

import "os"

// EnvLoader returns a Loader that reads the named environment variables on
// every load, so a SIGHUP reload picks up values rotated by the process
// supervisor. Unset or empty variables are left out of the result entirely,
// which lets Vault.GetOr fall back to configuration defaults.
func EnvLoader(keys ...string) Loader {
	return func() (map[string]string, error) {
		vals := make(map[string]string, len(keys))
		for _, key := range keys {
			if v := os.Getenv(key); v != "" {
				vals[key] = v
			}
		}
		return vals, nil
	}
}
