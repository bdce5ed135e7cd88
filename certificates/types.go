/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package certificates

import (
	"crypto/tls"
	"strings"
)

// Curves names an elliptic curve usable in the TLS handshake. The string form is
// what config documents carry; the zero value means "unset".
type Curves uint16

const (
	CurveUnknown Curves = iota
	X25519
	P256
	P384
	P521
)

func ParseCurves(s string) Curves {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "x25519":
		return X25519
	case "p256", "p-256", "prime256v1":
		return P256
	case "p384", "p-384":
		return P384
	case "p521", "p-521":
		return P521
	default:
		return CurveUnknown
	}
}

func (c Curves) String() string {
	switch c {
	case X25519:
		return "X25519"
	case P256:
		return "P256"
	case P384:
		return "P384"
	case P521:
		return "P521"
	default:
		return ""
	}
}

func (c Curves) TLS() tls.CurveID {
	switch c {
	case X25519:
		return tls.X25519
	case P256:
		return tls.CurveP256
	case P384:
		return tls.CurveP384
	case P521:
		return tls.CurveP521
	default:
		return 0
	}
}

func (c Curves) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Curves) UnmarshalText(p []byte) error {
	*c = ParseCurves(string(p))
	return nil
}

// Cipher names a TLS cipher suite by its common short form.
type Cipher uint16

const (
	CipherUnknown Cipher = iota
	AES128GCMSHA256
	AES256GCMSHA384
	CHACHA20POLY1305
	ECDHERSAAES128GCMSHA256
	ECDHERSAAES256GCMSHA384
	ECDHEECDSAAES128GCMSHA256
	ECDHEECDSAAES256GCMSHA384
)

func ParseCipher(s string) Cipher {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")) {
	case "aes_128_gcm_sha256", "tls_aes_128_gcm_sha256":
		return AES128GCMSHA256
	case "aes_256_gcm_sha384", "tls_aes_256_gcm_sha384":
		return AES256GCMSHA384
	case "chacha20_poly1305", "tls_chacha20_poly1305_sha256":
		return CHACHA20POLY1305
	case "ecdhe_rsa_aes_128_gcm_sha256":
		return ECDHERSAAES128GCMSHA256
	case "ecdhe_rsa_aes_256_gcm_sha384":
		return ECDHERSAAES256GCMSHA384
	case "ecdhe_ecdsa_aes_128_gcm_sha256":
		return ECDHEECDSAAES128GCMSHA256
	case "ecdhe_ecdsa_aes_256_gcm_sha384":
		return ECDHEECDSAAES256GCMSHA384
	default:
		return CipherUnknown
	}
}

func (c Cipher) String() string {
	switch c {
	case AES128GCMSHA256:
		return "aes_128_gcm_sha256"
	case AES256GCMSHA384:
		return "aes_256_gcm_sha384"
	case CHACHA20POLY1305:
		return "chacha20_poly1305"
	case ECDHERSAAES128GCMSHA256:
		return "ecdhe_rsa_aes_128_gcm_sha256"
	case ECDHERSAAES256GCMSHA384:
		return "ecdhe_rsa_aes_256_gcm_sha384"
	case ECDHEECDSAAES128GCMSHA256:
		return "ecdhe_ecdsa_aes_128_gcm_sha256"
	case ECDHEECDSAAES256GCMSHA384:
		return "ecdhe_ecdsa_aes_256_gcm_sha384"
	default:
		return ""
	}
}

func (c Cipher) TLS() uint16 {
	switch c {
	case AES128GCMSHA256:
		return tls.TLS_AES_128_GCM_SHA256
	case AES256GCMSHA384:
		return tls.TLS_AES_256_GCM_SHA384
	case CHACHA20POLY1305:
		return tls.TLS_CHACHA20_POLY1305_SHA256
	case ECDHERSAAES128GCMSHA256:
		return tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256
	case ECDHERSAAES256GCMSHA384:
		return tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384
	case ECDHEECDSAAES128GCMSHA256:
		return tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256
	case ECDHEECDSAAES256GCMSHA384:
		return tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384
	default:
		return 0
	}
}

func (c Cipher) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Cipher) UnmarshalText(p []byte) error {
	*c = ParseCipher(string(p))
	return nil
}

// Version names a TLS protocol version.
type Version uint16

const (
	VersionUnknown Version = iota
	VersionTLS12
	VersionTLS13
)

func ParseVersion(s string) Version {
	switch strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), " ", "")) {
	case "1.2", "tls1.2", "tls_1.2", "tlsv1.2":
		return VersionTLS12
	case "1.3", "tls1.3", "tls_1.3", "tlsv1.3":
		return VersionTLS13
	default:
		return VersionUnknown
	}
}

func (v Version) String() string {
	switch v {
	case VersionTLS12:
		return "tls1.2"
	case VersionTLS13:
		return "tls1.3"
	default:
		return ""
	}
}

func (v Version) TLS() uint16 {
	switch v {
	case VersionTLS12:
		return tls.VersionTLS12
	case VersionTLS13:
		return tls.VersionTLS13
	default:
		return 0
	}
}

func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

func (v *Version) UnmarshalText(p []byte) error {
	*v = ParseVersion(string(p))
	return nil
}

// ClientAuth names the client-certificate policy of a listener.
type ClientAuth uint8

const (
	NoClientCert ClientAuth = iota
	RequestClientCert
	RequireAnyClientCert
	VerifyClientCertIfGiven
	RequireAndVerifyClientCert
)

func ParseClientAuth(s string) ClientAuth {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "request":
		return RequestClientCert
	case "require":
		return RequireAnyClientCert
	case "verify":
		return VerifyClientCertIfGiven
	case "strict", "require_and_verify":
		return RequireAndVerifyClientCert
	default:
		return NoClientCert
	}
}

func (a ClientAuth) String() string {
	switch a {
	case RequestClientCert:
		return "request"
	case RequireAnyClientCert:
		return "require"
	case VerifyClientCertIfGiven:
		return "verify"
	case RequireAndVerifyClientCert:
		return "strict"
	default:
		return "none"
	}
}

func (a ClientAuth) TLS() tls.ClientAuthType {
	switch a {
	case RequestClientCert:
		return tls.RequestClientCert
	case RequireAnyClientCert:
		return tls.RequireAnyClientCert
	case VerifyClientCertIfGiven:
		return tls.VerifyClientCertIfGiven
	case RequireAndVerifyClientCert:
		return tls.RequireAndVerifyClientCert
	default:
		return tls.NoClientCert
	}
}

func (a ClientAuth) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *ClientAuth) UnmarshalText(p []byte) error {
	*a = ParseClientAuth(string(p))
	return nil
}
