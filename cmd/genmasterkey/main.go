// Command genmasterkey prints a base64 master key for the server's
// MASTER_KEY setting. The key is derived from a passphrase with argon2id,
// or drawn at random with -random.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/accountctx/internal/cryptox"
	"golang.org/x/term"
)

const keyLength = 32

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, out, prompt io.Writer) error {
	fs := flag.NewFlagSet("genmasterkey", flag.ContinueOnError)
	fs.SetOutput(prompt)
	random := fs.Bool("random", false, "generate a random key instead of deriving one")
	salt := fs.String("salt", "", "salt for passphrase derivation (required unless -random)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var key []byte
	if *random {
		key = make([]byte, keyLength)
		if _, err := rand.Read(key); err != nil {
			return err
		}
	} else {
		if *salt == "" {
			return errors.New("-salt is required when deriving from a passphrase")
		}
		pass, err := passphrase(prompt)
		if err != nil {
			return err
		}
		key = cryptox.DeriveMasterKey(pass, []byte(*salt))
	}

	_, err := fmt.Fprintln(out, base64.StdEncoding.EncodeToString(key))
	return err
}

func passphrase(prompt io.Writer) ([]byte, error) {
	fd := int(os.Stdin.Fd())

	fmt.Fprint(prompt, "Passphrase: ")
	first, err := readPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return nil, err
	}
	if len(first) == 0 {
		return nil, errors.New("passphrase is empty")
	}

	fmt.Fprint(prompt, "Repeat: ")
	second, err := readPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return nil, err
	}
	if string(first) != string(second) {
		return nil, errors.New("passphrases do not match")
	}
	return first, nil
}
