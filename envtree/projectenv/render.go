package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// render writes env to w in the named format
func render(w io.Writer, format string, env map[string]string) error {
	switch format {
	case "", "dotenv":
		if len(env) == 0 {
			return nil
		}
		out, err := godotenv.Marshal(env)
		if err != nil {
			return fmt.Errorf("failed to encode dotenv: %w", err)
		}
		_, err = fmt.Fprintln(w, out)
		return err
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(env)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(env)
	case "toml":
		return toml.NewEncoder(w).Encode(env)
	default:
		return fmt.Errorf("unknown format %q", format)
	}
}
