package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"net"
	"os"

	"tlsshuttle/nettransport"
	"tlsshuttle/session"
	"tlsshuttle/tlscred"
)

func clientCommand(args []string) error {
	cmd := flag.NewFlagSet("client", flag.ExitOnError)
	connectAddr := cmd.String("connect", "127.0.0.1:8443", "connect to the given IP:port")
	serverName := cmd.String("servername", "", "SNI / expected server name (defaults to the connect host)")
	trustFile := cmd.String("trust", "", "PEM trust store file")
	certFile := cmd.String("cert", "", "PEM client certificate file (for client auth)")
	keyFile := cmd.String("key", "", "PEM client private key file (for client auth)")
	message := cmd.String("message", "hello\n", "line to send after the handshake completes")
	logLevel := cmd.Int("v", session.LevelInfo, "log verbose: 0=off 1=error 2=info 3=debug 4=trace")
	cmd.Parse(args)

	host, _, err := net.SplitHostPort(*connectAddr)
	if err != nil {
		host = *connectAddr
	}
	if *serverName == "" {
		*serverName = host
	}

	creds := tlscred.New()
	if *trustFile != "" {
		trustPEM, err := os.ReadFile(*trustFile)
		if err != nil {
			return err
		}
		if err := creds.SetTrust(trustPEM, tlscred.FormatPEM); err != nil {
			return err
		}
	} else {
		creds.EnableSystemTrust()
	}
	if *certFile != "" && *keyFile != "" {
		certPEM, err := os.ReadFile(*certFile)
		if err != nil {
			return err
		}
		keyPEM, err := os.ReadFile(*keyFile)
		if err != nil {
			return err
		}
		if err := creds.SetKey(certPEM, keyPEM, tlscred.FormatPEM); err != nil {
			return err
		}
	}

	logger := session.LeveledLogger(*logLevel)

	conn, err := net.Dial("tcp", *connectAddr)
	if err != nil {
		return err
	}
	defer conn.Close()

	transport := nettransport.New(conn)
	sess, err := session.New(session.RoleClient, creds, transport, transport, session.Options{ServerName: *serverName}, logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx := context.Background()
	if err := sess.Handshake(ctx); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	logger.Log(session.LevelInfo, "handshake complete, sending message")

	if err := sess.Put(ctx, []byte(*message)); err != nil {
		return fmt.Errorf("put: %w", err)
	}

	reader := bufio.NewReaderSize(connReader{sess, ctx}, 4096)
	line, err := reader.ReadBytes('\n')
	if len(line) > 0 {
		fmt.Fprintf(os.Stdout, "%s", line)
	}
	if err != nil && len(line) == 0 {
		return err
	}
	return sess.Shutdown(ctx)
}
