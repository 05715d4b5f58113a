// Command token prints an HS256 access token signed with the server's
// configured secret.
//
//	token -s <secret> -sub <user id> [-email <address>]
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/dmitrijs2005/palette/internal/flagx"
	"github.com/dmitrijs2005/palette/internal/server"
	"github.com/dmitrijs2005/palette/internal/server/config"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	fs := flag.NewFlagSet("token", flag.ExitOnError)
	sub := fs.String("sub", "", "user id to put in the token subject")
	email := fs.String("email", "", "email claim")
	_ = fs.Parse(flagx.FilterArgs(os.Args[1:], []string{"-sub", "-email"}))

	tok, err := server.IssueToken(cfg, *sub, *email)
	if err != nil {
		log.Fatalf("%v", err)
	}
	fmt.Println(tok)
}
