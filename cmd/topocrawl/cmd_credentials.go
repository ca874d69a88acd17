package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/topocrawl/topocrawl/internal/auth"
	"github.com/topocrawl/topocrawl/internal/credentials"
)

func runSeal(cmd *cobra.Command, args []string) {
	logger := newLogger(logLevel)

	key := sealKey
	if key == "" {
		key = os.Getenv("TOPO_AUTH_ENCRYPTION_KEY")
	}
	if key == "" {
		fatal(logger, "No encryption key", errors.New("set --key or TOPO_AUTH_ENCRYPTION_KEY"))
	}
	cipher, err := auth.NewCipher(key)
	if err != nil {
		fatal(logger, "Invalid encryption key", err)
	}

	var secret string
	if len(args) == 1 {
		secret = args[0]
	} else {
		// Read from stdin so the secret stays out of shell history.
		fmt.Fprint(os.Stderr, "Secret: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			fatal(logger, "Failed to read secret", err)
		}
		fmt.Fprintln(os.Stderr)
		secret = strings.TrimRight(line, "\r\n")
	}
	if secret == "" {
		fatal(logger, "Empty secret", errors.New("nothing to seal"))
	}

	sealed, err := credentials.Seal(cipher, secret)
	if err != nil {
		fatal(logger, "Failed to seal secret", err)
	}
	fmt.Println(sealed)
}
