// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-javacard.
//
// go-javacard is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package security

import (
	"crypto/elliptic"
	"crypto/sha1"

	"golang.org/x/crypto/curve25519"

	"github.com/jeremyhahn/go-javacard/pkg/metrics"
)

// AgreementAlgorithm identifies a key agreement scheme.
type AgreementAlgorithm uint8

const (
	AgreeECSVDPDH        AgreementAlgorithm = 1
	AgreeECSVDPDHC       AgreementAlgorithm = 2
	AgreeECSVDPDHPlain   AgreementAlgorithm = 3
	AgreeECSVDPDHCPlain  AgreementAlgorithm = 4
	AgreeECSVDPDHPlainXY AgreementAlgorithm = 6
	AgreeXDH             AgreementAlgorithm = 8
)

var agreementNames = map[AgreementAlgorithm]string{
	AgreeECSVDPDH:        "ec_svdp_dh",
	AgreeECSVDPDHC:       "ec_svdp_dhc",
	AgreeECSVDPDHPlain:   "ec_svdp_dh_plain",
	AgreeECSVDPDHCPlain:  "ec_svdp_dhc_plain",
	AgreeECSVDPDHPlainXY: "ec_svdp_dh_plain_xy",
	AgreeXDH:             "xdh",
}

// String returns the algorithm name.
func (a AgreementAlgorithm) String() string {
	if n, ok := agreementNames[a]; ok {
		return n
	}
	return "unknown"
}

// KeyAgreement derives a shared secret from a private key and the other
// party's public value. The prime curves in use have cofactor one, so the
// DHC variants produce the same secret as their DH counterparts.
type KeyAgreement struct {
	alg  AgreementAlgorithm
	priv Key
}

// NewKeyAgreement creates an uninitialized agreement object for alg.
func NewKeyAgreement(alg AgreementAlgorithm) (*KeyAgreement, error) {
	if _, ok := agreementNames[alg]; !ok {
		return nil, ErrNoSuchAlgorithm.WithMsg("key agreement %d", alg)
	}
	return &KeyAgreement{alg: alg}, nil
}

// Algorithm returns the agreement algorithm.
func (ka *KeyAgreement) Algorithm() AgreementAlgorithm {
	return ka.alg
}

// Init sets the private key.
func (ka *KeyAgreement) Init(priv Key) error {
	if priv == nil {
		return ErrIllegalValue.WithMsg("nil key")
	}
	switch k := priv.(type) {
	case *ECPrivateKey:
		if ka.alg == AgreeXDH {
			return ErrIllegalValue.WithMsg("XDH needs an X25519 private key")
		}
	case *XECKey:
		if ka.alg != AgreeXDH || k.Type() != TypeX25519Private {
			return ErrIllegalValue.WithMsg("X25519 key does not fit %s", ka.alg)
		}
	default:
		return ErrIllegalValue.WithMsg("key type %d cannot agree", priv.Type())
	}
	if !priv.IsInitialized() {
		return ErrUninitializedKey
	}
	ka.priv = priv
	return nil
}

// GenerateSecret computes the shared secret with the public value.
func (ka *KeyAgreement) GenerateSecret(public []byte) ([]byte, error) {
	if ka.priv == nil {
		return nil, ErrInvalidInit
	}
	out, err := ka.generate(public)
	Record(metrics.OpAgreement, ka.alg.String(), err)
	return out, err
}

func (ka *KeyAgreement) generate(public []byte) ([]byte, error) {
	if !ka.priv.IsInitialized() {
		return nil, ErrUninitializedKey
	}
	if xk, ok := ka.priv.(*XECKey); ok {
		if len(public) != curve25519.PointSize {
			return nil, ErrIllegalValue.WithMsg("X25519 public value of %d bytes", len(public))
		}
		secret, err := curve25519.X25519(xk.data, public)
		if err != nil {
			return nil, ErrIllegalUse.WithMsg("%v", err)
		}
		return secret, nil
	}

	k := ka.priv.(*ECPrivateKey)
	x, y := elliptic.Unmarshal(k.curve, public)
	if x == nil {
		return nil, ErrIllegalValue.WithMsg("public value is not an uncompressed point on %s", k.curve.Params().Name)
	}
	sx, sy := k.curve.ScalarMult(x, y, k.s)
	if sx.Sign() == 0 && sy.Sign() == 0 {
		return nil, ErrIllegalUse.WithMsg("shared point at infinity")
	}
	size := (k.curve.Params().BitSize + 7) / 8
	xb := sx.FillBytes(make([]byte, size))
	switch ka.alg {
	case AgreeECSVDPDH, AgreeECSVDPDHC:
		sum := sha1.Sum(xb)
		return sum[:], nil
	case AgreeECSVDPDHPlainXY:
		return append(append([]byte{0x04}, xb...), sy.FillBytes(make([]byte, size))...), nil
	}
	return xb, nil
}
