package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vyrodovalexey/avauthz/internal/auth/keys"
)

// Output formats of keygen.
const (
	formatEnv  = "env"
	formatYAML = "yaml"
)

// keyMaterial is the secret layout read by the key provider.
type keyMaterial struct {
	PrivateKey string `json:"private_key" yaml:"private_key"`
	PublicKey  string `json:"public_key" yaml:"public_key"`
	KeyID      string `json:"kid" yaml:"kid"`
}

func runKeygen(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("keygen", flag.ContinueOnError)
	fs.SetOutput(stderr)
	envName := fs.String("env", string(keys.Development), "Environment the key belongs to")
	alg := fs.String("alg", keys.AlgEdDSA, "Algorithm: EdDSA, ES256, ES384, ES512 or RS256")
	format := fs.String("format", formatEnv, "Output format: env (dotenv line) or yaml (local secrets file)")
	prefix := fs.String("secret-prefix", keys.DefaultSecretPrefix, "Secret name prefix")
	envPrefix := fs.String("env-prefix", "", "Variable prefix of the env secrets provider")
	out := fs.String("out", "", "Write to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := keys.ParseEnvironment(*envName)
	if err != nil {
		return err
	}
	pair, err := keys.GenerateKeyPair(env, *alg)
	if err != nil {
		return err
	}
	material, err := encodeKeyMaterial(pair)
	if err != nil {
		return err
	}

	secretName := *prefix + env.String()
	var rendered []byte
	switch *format {
	case formatEnv:
		rendered, err = renderEnv(*envPrefix, secretName, material)
	case formatYAML:
		rendered, err = yaml.Marshal(material)
	default:
		return fmt.Errorf("unknown format %q", *format)
	}
	if err != nil {
		return err
	}

	if *out == "" {
		_, err = stdout.Write(rendered)
		return err
	}
	if err := os.WriteFile(*out, rendered, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", *out, err)
	}
	fmt.Fprintf(stderr, "wrote %s key %s for %s to %s\n", pair.Algorithm, pair.KeyID, env, *out)
	return nil
}

func encodeKeyMaterial(pair *keys.KeyPair) (keyMaterial, error) {
	private, err := keys.EncodePrivateKeyPEM(pair)
	if err != nil {
		return keyMaterial{}, err
	}
	public, err := keys.EncodePublicKeyPEM(pair)
	if err != nil {
		return keyMaterial{}, err
	}
	return keyMaterial{
		PrivateKey: string(private),
		PublicKey:  string(public),
		KeyID:      pair.KeyID,
	}, nil
}

// renderEnv renders one dotenv line holding the material as a JSON object,
// the form the env secrets provider merges from a bare variable.
func renderEnv(envPrefix, secretName string, m keyMaterial) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("%s='%s'\n", envVarName(envPrefix, secretName), b)), nil
}

func envVarName(envPrefix, secretName string) string {
	r := strings.NewReplacer("-", "_", "/", "_", ".", "_")
	return strings.ToUpper(envPrefix + r.Replace(secretName))
}
