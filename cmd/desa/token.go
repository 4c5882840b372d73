// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/olegiv/desa-go/internal/auth"
)

// minTokenLength keeps admin tokens out of easy brute-force range.
const minTokenLength = 16

func newHashTokenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-token [token]",
		Short: "Print the argon2id hash of an admin token for DESA_ADMIN_TOKEN_HASH",
		Long: `Print the argon2id hash of an admin bearer token.

The token is read from the argument or, when omitted, from the first line of stdin.
Store the printed hash in DESA_ADMIN_TOKEN_HASH and send the token itself as
"Authorization: Bearer <token>".`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			token := ""
			if len(args) == 1 {
				token = args[0]
			} else {
				t, err := readLine(cmd.InOrStdin())
				if err != nil {
					return err
				}
				token = t
			}

			hash, err := hashToken(token)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func hashToken(token string) (string, error) {
	token = strings.TrimSpace(token)
	if len(token) < minTokenLength {
		return "", fmt.Errorf("token must be at least %d characters", minTokenLength)
	}
	hash, err := auth.HashToken(token)
	if err != nil {
		return "", fmt.Errorf("hashing token: %w", err)
	}
	return hash, nil
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("reading token: %w", err)
	}
	return strings.TrimSpace(line), nil
}
