// Package sig implements the request signature of the Platform@Mail.Ru REST API.
//
// The API documents two signing circuits, selected by which credentials the caller holds:
//
//	client-server: md5(uid + k1=v1k2=v2... + private_key)
//	server-server: md5(k1=v1k2=v2... + secret_key)
//
// Keys are sorted bytewise and concatenated without a delimiter.
package sig

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
)

var ErrSignature = errors.New("signature circuit is undefined")

type Circuit int

const (
	Undefined Circuit = iota
	ClientServer
	ServerServer
)

func (c Circuit) String() string {
	switch c {
	case ClientServer:
		return "client-server"
	case ServerServer:
		return "server-server"
	default:
		return "undefined"
	}
}

// Credentials are the secrets a session signs with. Uid is empty when unknown,
// clearing it forces the server-server circuit.
type Credentials struct {
	AppID       string `json:"app_id"`
	PrivateKey  string `json:"private_key"`
	SecretKey   string `json:"secret_key"`
	AccessToken string `json:"access_token"`
	Uid         string `json:"uid"`
}

// Circuit derives the signing circuit from the credentials present.
func (c Credentials) Circuit() Circuit {
	switch {
	case c.Uid != "" && c.PrivateKey != "":
		return ClientServer
	case c.SecretKey != "":
		return ServerServer
	default:
		return Undefined
	}
}

// Canonical returns the string that gets hashed for params under the credentials' circuit.
func (c Credentials) Canonical(params map[string]string) (string, error) {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "sig" || k == "access_token" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	circuit := c.Circuit()
	if circuit == ClientServer {
		b.WriteString(c.Uid)
	}
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
	}

	switch circuit {
	case ClientServer:
		b.WriteString(c.PrivateKey)
	case ServerServer:
		b.WriteString(c.SecretKey)
	default:
		return "", ErrSignature
	}
	return b.String(), nil
}

// Sign returns the hex md5 signature of params.
func (c Credentials) Sign(params map[string]string) (string, error) {
	canonical, err := c.Canonical(params)
	if err != nil {
		return "", fmt.Errorf("sign: %w", err)
	}
	sum := md5.Sum([]byte(canonical))
	return hex.EncodeToString(sum[:]), nil
}
