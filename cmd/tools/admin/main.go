package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/noah-isme/trustflowpay/internal/auth"
)

const usage = `usage:
  admin token [-ttl 1h] <subject>   sign an admin bearer token with JWT_SECRET
  admin hash-key <key>              print the ADMIN_API_KEY_HASH value for key`

func main() {
	_ = godotenv.Load()
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	switch os.Args[1] {
	case "token":
		fs := flag.NewFlagSet("token", flag.ExitOnError)
		ttl := fs.Duration("ttl", time.Hour, "token lifetime")
		_ = fs.Parse(os.Args[2:])
		if fs.NArg() != 1 {
			log.Fatal(usage)
		}
		tokens, err := auth.NewTokens(os.Getenv("JWT_SECRET"), *ttl)
		if err != nil {
			log.Fatalf("token service: %v", err)
		}
		token, err := tokens.Issue(fs.Arg(0), auth.RoleAdmin)
		if err != nil {
			log.Fatalf("issue token: %v", err)
		}
		fmt.Println(token)
	case "hash-key":
		if len(os.Args) != 3 {
			log.Fatal(usage)
		}
		hash, err := auth.HashAPIKey(os.Args[2])
		if err != nil {
			log.Fatalf("hash key: %v", err)
		}
		fmt.Println(hash)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
}
