package util

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func GetEnvironmentVariables() map[string]string {
	environmentVariables := map[string]string{}

	for _, variable := range os.Environ() {
		pair := strings.SplitN(variable, "=", 2)

		environmentVariables[pair[0]] = pair[1]
	}

	return environmentVariables
}

// EnvDuration parses env[key] as a Go duration, leaving current untouched when unset or malformed
func EnvDuration(env map[string]string, key string, current time.Duration) time.Duration {
	if val := env[key]; val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}

	return current
}

func EnvInt(env map[string]string, key string, current int) int {
	if val := env[key]; val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}

	return current
}

func EnvBool(env map[string]string, key string, current bool) bool {
	switch strings.ToUpper(env[key]) {
	case "YES", "TRUE", "1":
		return true
	case "NO", "FALSE", "0":
		return false
	}

	return current
}

// EnvList splits a comma separated variable, dropping blanks and duplicates
func EnvList(env map[string]string, key string, current []string) []string {
	val := env[key]
	if val == "" {
		return current
	}

	var items []string
	for _, item := range strings.Split(val, ",") {
		items = append(items, strings.TrimSpace(item))
	}

	return RemoveDuplicateStrings(items, nil)
}
