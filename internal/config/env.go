package config

import (
	"fmt"
	"maps"

	"github.com/joho/godotenv"
)

// Environment returns the variables overlaid on the host environment for this
// build: the contents of EnvFile, then Env on top.
func (c *BuildConfig) Environment() (map[string]string, error) {
	env := map[string]string{}
	if c.EnvFile != "" {
		fromFile, err := godotenv.Read(c.EnvFile)
		if err != nil {
			return nil, fmt.Errorf("read env file %s: %w", c.EnvFile, err)
		}
		maps.Copy(env, fromFile)
	}
	maps.Copy(env, c.Env)
	return env, nil
}
