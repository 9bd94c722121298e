package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net"
	"os"

	"tlsshuttle/nettransport"
	"tlsshuttle/session"
	"tlsshuttle/tlscred"
)

func serverCommand(args []string) error {
	cmd := flag.NewFlagSet("server", flag.ExitOnError)
	listenAddr := cmd.String("listen", "127.0.0.1:8443", "listen on the given IP:port")
	certFile := cmd.String("cert", "", "PEM certificate file")
	keyFile := cmd.String("key", "", "PEM private key file")
	trustFile := cmd.String("trust", "", "PEM trust store file (for client-auth)")
	clientAuth := cmd.String("client-auth", "none", "client-auth mode: none, request, require")
	logLevel := cmd.Int("v", session.LevelInfo, "log verbose: 0=off 1=error 2=info 3=debug 4=trace")
	cmd.Parse(args)

	if *certFile == "" || *keyFile == "" {
		return fmt.Errorf("-cert and -key are required")
	}

	creds := tlscred.New()
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
	if *trustFile != "" {
		trustPEM, err := os.ReadFile(*trustFile)
		if err != nil {
			return err
		}
		if err := creds.SetTrust(trustPEM, tlscred.FormatPEM); err != nil {
			return err
		}
	}
	mode, err := parseClientAuth(*clientAuth)
	if err != nil {
		return err
	}
	creds.SetClientAuth(mode)

	logger := session.LeveledLogger(*logLevel)

	ln, err := net.Listen("tcp", *listenAddr)
	if err != nil {
		return err
	}
	defer ln.Close()
	log := logger
	log.Log(session.LevelInfo, "listening on %s", *listenAddr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go serveConn(conn, creds, logger)
	}
}

func serveConn(conn net.Conn, creds *tlscred.Credentials, logger session.Logger) {
	defer conn.Close()
	transport := nettransport.New(conn)
	sess, err := session.New(session.RoleServer, creds, transport, transport, session.Options{}, logger)
	if err != nil {
		logger.Log(session.LevelError, "session setup failed: %v", err)
		return
	}
	defer sess.Close()

	ctx := context.Background()
	if err := sess.Handshake(ctx); err != nil {
		logger.Log(session.LevelError, "handshake failed: %v", err)
		return
	}

	reader := bufio.NewReaderSize(connReader{sess, ctx}, 4096)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			if perr := sess.Put(ctx, line); perr != nil {
				logger.Log(session.LevelError, "write failed: %v", perr)
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// connReader adapts Session.Get into an io.Reader so bufio.Reader can frame
// lines for the demo's trivial echo protocol.
type connReader struct {
	sess *session.Session
	ctx  context.Context
}

func (r connReader) Read(p []byte) (int, error) {
	buf, err := r.sess.Get(r.ctx)
	if err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, io.EOF
	}
	return copy(p, buf), nil
}

func parseClientAuth(s string) (tlscred.ClientAuthMode, error) {
	switch s {
	case "none":
		return tlscred.ClientAuthNone, nil
	case "request":
		return tlscred.ClientAuthRequest, nil
	case "require":
		return tlscred.ClientAuthRequire, nil
	default:
		return 0, fmt.Errorf("unknown client-auth mode %q", s)
	}
}
