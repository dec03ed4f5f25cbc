package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"
)

// minKeyLength keeps reviewer keys out of guessing range.
const minKeyLength = 16

func main() {
	var cost int
	flag.IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	flag.Parse()

	fmt.Println("=== Hash Reviewer Key ===")

	key, err := readKey()
	if err != nil {
		fmt.Printf("Error reading key: %v\n", err)
		os.Exit(1)
	}
	if len(key) < minKeyLength {
		fmt.Printf("Error: Key must be at least %d characters\n", minKeyLength)
		os.Exit(1)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(key), cost)
	if err != nil {
		fmt.Printf("Error hashing key: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nSet this in the server environment:")
	fmt.Printf("REVIEW_API_KEY='%s'\n", hash)
}

// readKey prompts without echo on a terminal and reads one line otherwise.
func readKey() (string, error) {
	if !term.IsTerminal(int(syscall.Stdin)) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}

	fmt.Print("Enter Key: ")
	first, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	fmt.Print("Confirm Key: ")
	second, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", fmt.Errorf("keys do not match")
	}
	return strings.TrimSpace(string(first)), nil
}
