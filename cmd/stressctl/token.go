package main

import (
	"errors"
	"fmt"
	"time"

	"stress-detect-go/internal/api/middleware"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
)

func newTokenCmd(root *rootOptions) *cobra.Command {
	var secret string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue a bearer token for a subject (for testing the API)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				cfg, err := root.loadConfig()
				if err != nil {
					return err
				}
				secret = cfg.Auth.JWTSecret
			}
			if secret == "" {
				return errors.New("no secret: pass --secret or set auth.jwt_secret")
			}

			claims := jwt.MapClaims{"iat": time.Now().Unix()}
			if ttl > 0 {
				claims["exp"] = time.Now().Add(ttl).Unix()
			}
			token, err := middleware.SignToken(secret, args[0], claims)
			if err != nil {
				return fmt.Errorf("failed to sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "HMAC secret (default: auth.jwt_secret from the config)")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime, 0 for no expiry")
	return cmd
}
