package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "session-auth",
		Usage: "Build, sign and verify session authentication payloads",
		Description: `A tool for the session authentication handshake.

This tool can:
- Generate ephemeral secp256k1 session keys
- Produce signed authentication payloads with a local or AWS KMS client key
- Verify payloads and consume their nonce against a nonce store`,
		Version: "1.0.0",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "Path to a YAML config file",
				EnvVars: []string{"SESSION_CONFIG"},
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "keygen",
				Usage: "Generate a new session key, or provision a client key with --client",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "client",
						Usage: "Provision a client identity key using the configured signer type",
					},
					&cli.StringFlag{
						Name:  "key-name",
						Usage: "Name tag for the client key",
						Value: "session-client",
					},
					&cli.StringFlag{
						Name:  "alias",
						Usage: "KMS alias for the client key (without the alias/ prefix)",
					},
				},
				Action: keygenCommand,
			},
			{
				Name:  "generate",
				Usage: "Generate a signed authentication payload",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "session-key",
						Usage:    "Session private key (hex)",
						EnvVars:  []string{"SESSION_KEY"},
						Required: true,
					},
					&cli.StringFlag{
						Name:  "id-token",
						Usage: "ID token issued by the identity provider",
					},
					&cli.StringFlag{
						Name:  "provider",
						Usage: "Identity provider name recorded in the payload",
						Value: "google",
					},
					&cli.StringFlag{
						Name:  "output",
						Usage: "Output file for the payload JSON",
					},
				},
				Action: generateCommand,
			},
			{
				Name:  "verify",
				Usage: "Verify an authentication payload and consume its nonce",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "payload",
						Usage: "Path to the payload JSON, or - for stdin",
						Value: "-",
					},
				},
				Action: verifyCommand,
			},
			{
				Name:   "whoami",
				Usage:  "Show the AWS identity and KMS signer address in use",
				Action: whoamiCommand,
			},
		},
	}
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
