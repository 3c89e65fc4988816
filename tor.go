package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/cretz/bine/tor"
	"github.com/cretz/bine/torutil"
	tued25519 "github.com/cretz/bine/torutil/ed25519"
	"github.com/hiddenface/hiddenface/store"
)

// getOrCreatePK loads the onion service key from the store, generating
// and persisting a fresh one on first run.
func getOrCreatePK(st store.Store) (ed25519.PrivateKey, error) {
	const key = "onionkey"

	d, err := st.Get(key)
	if len(d) == 0 || err != nil {
		_, privateKey, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		x509Encoded, err := x509.MarshalPKCS8PrivateKey(privateKey)
		if err != nil {
			return nil, err
		}
		pemEncoded := pem.EncodeToMemory(&pem.Block{Type: "ED25519 PRIVATE KEY", Bytes: x509Encoded})
		return privateKey, st.Set(key, pemEncoded)
	}

	block, _ := pem.Decode(d)
	tPk, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, err
	}
	privateKey, ok := tPk.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("invalid key type %T wanted ed25519.PrivateKey", tPk)
	}
	return privateKey, nil
}

// torServer serves an HTTP handler as a v3 onion service. It expects a
// tor binary on the host.
type torServer struct {
	Handler    http.Handler
	PrivateKey ed25519.PrivateKey
}

// onionAddr derives the .onion address for the given service key.
func onionAddr(pk ed25519.PrivateKey) string {
	return torutil.OnionServiceIDFromV3PublicKey(tued25519.PublicKey([]byte(pk.Public().(ed25519.PublicKey))))
}

// ListenAndServe starts tor, publishes the onion service and serves
// the handler on it. Blocking.
func (ts *torServer) ListenAndServe() error {
	d, err := os.MkdirTemp("", "")
	if err != nil {
		return err
	}

	t, err := tor.Start(nil, &tor.StartConf{TempDataDirBase: d, NoHush: true})
	if err != nil {
		return fmt.Errorf("unable to start Tor: %v", err)
	}
	defer t.Close()

	// Publishing can take a couple of minutes.
	listenCtx, listenCancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer listenCancel()

	// Listen on any local port but expose port 80 on the onion address.
	onion, err := t.Listen(listenCtx, &tor.ListenConf{Key: ts.PrivateKey, Version3: true, RemotePorts: []int{80}})
	if err != nil {
		return fmt.Errorf("unable to create onion service: %v", err)
	}
	defer onion.Close()

	return http.Serve(onion, ts.Handler)
}
