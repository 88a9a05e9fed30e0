package crypto

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
)

// LoadKeyPair reads an RSA key pair from PEM files. Either path may be
// empty; the resulting KeyPair then only supports the other direction.
func LoadKeyPair(publicPath, privatePath string) (*KeyPair, error) {
	var public *rsa.PublicKey
	var private *rsa.PrivateKey
	if publicPath != "" {
		key, err := loadPublicKey(publicPath)
		if err != nil {
			return nil, err
		}
		public = key
	}
	if privatePath != "" {
		key, err := loadPrivateKey(privatePath)
		if err != nil {
			return nil, err
		}
		private = key
	}
	return NewKeyPair(public, private)
}

func loadPublicKey(path string) (*rsa.PublicKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("crypto: parse public key %s: %w", path, err)
	}
	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("crypto: public key %s: not an RSA key", path)
	}
	return key, nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	if parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		key, ok := parsed.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("crypto: private key %s: not an RSA key", path)
		}
		return key, nil
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("crypto: parse private key %s: %w", path, err)
	}
	return key, nil
}

func readPEM(path string) (*pem.Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("crypto: read key file: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, errors.New("crypto: no PEM block in " + path)
	}
	return block, nil
}
