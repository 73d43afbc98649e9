package config

import (
	"fmt"
	"log"
	"slices"
)

func MustNonEmpty(value, envName string) {
	if value == "" {
		log.Fatalf("missing required env %s", envName)
	}
}

func MustNonEmptyBytes(value []byte, envName string) {
	if len(value) == 0 {
		log.Fatalf("missing required env %s", envName)
	}
}

func MustOneOf(value, envName string, allowed ...string) {
	if err := oneOf(value, envName, allowed...); err != nil {
		log.Fatal(err)
	}
}

func oneOf(value, envName string, allowed ...string) error {
	if !slices.Contains(allowed, value) {
		return fmt.Errorf("env %s=%q must be one of %v", envName, value, allowed)
	}
	return nil
}
