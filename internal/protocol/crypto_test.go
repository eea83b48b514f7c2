package protocol

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) (*Engine, *rsa.PrivateKey) {
	t.Helper()
	key, der, err := GenerateRSAKeypair(DefaultRSAKeyBits)
	require.NoError(t, err)
	return NewEngine(key, der), key
}

func TestRSARoundTripOAEPSHA1(t *testing.T) {
	engine, key := newTestEngine(t)

	sessionKey := make([]byte, 16)
	_, err := rand.Read(sessionKey)
	require.NoError(t, err)

	ciphertext, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, &key.PublicKey, sessionKey, nil)
	require.NoError(t, err)

	err = engine.InstallSessionKeyFromRSA(ciphertext)
	require.NoError(t, err)
	require.True(t, engine.HasSessionKey())
}

func TestRSAFallbackToPKCS1v15(t *testing.T) {
	engine, key := newTestEngine(t)

	sessionKey := make([]byte, 16)
	_, err := rand.Read(sessionKey)
	require.NoError(t, err)

	ciphertext, err := rsa.EncryptPKCS1v15(rand.Reader, &key.PublicKey, sessionKey)
	require.NoError(t, err)

	err = engine.InstallSessionKeyFromRSA(ciphertext)
	require.NoError(t, err)
	require.True(t, engine.HasSessionKey())
}

func TestAESRoundTrip(t *testing.T) {
	engine, _ := newTestEngine(t)
	ciphertext, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, &engine.rsaKey.PublicKey, make([]byte, 16), nil)
	require.NoError(t, err)
	require.NoError(t, engine.InstallSessionKeyFromRSA(ciphertext))

	plaintexts := [][]byte{
		{},
		[]byte("short"),
		make([]byte, 16),
		make([]byte, 17),
		[]byte("exactly-16-bytes"),
	}
	for _, p := range plaintexts {
		ct, err := engine.EncryptAES(p)
		require.NoError(t, err)
		require.Equal(t, 0, len(ct)%aesBlockSize)
		require.Greater(t, len(ct), len(p))

		pt, err := engine.DecryptAES(ct)
		require.NoError(t, err)
		require.Equal(t, p, pt)
	}
}

func TestAESDecryptRejectsBadLength(t *testing.T) {
	engine, _ := newTestEngine(t)
	ciphertext, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, &engine.rsaKey.PublicKey, make([]byte, 16), nil)
	require.NoError(t, err)
	require.NoError(t, engine.InstallSessionKeyFromRSA(ciphertext))

	_, err = engine.DecryptAES(nil)
	require.ErrorIs(t, err, ErrInvalidAesLength)

	_, err = engine.DecryptAES(make([]byte, 15))
	require.ErrorIs(t, err, ErrInvalidAesLength)
}

func TestEnvelopeRoundTrip(t *testing.T) {
	engine, _ := newTestEngine(t)
	ciphertext, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, &engine.rsaKey.PublicKey, make([]byte, 16), nil)
	require.NoError(t, err)
	require.NoError(t, engine.InstallSessionKeyFromRSA(ciphertext))

	inner := []byte{0x22, 0x22, 0x04, 0x03, 0x02, 0x01}
	envelope, err := engine.EncryptEnvelope(inner)
	require.NoError(t, err)
	require.Equal(t, byte(0x25), envelope[0])
	require.Equal(t, EnvelopeFlags[:], envelope[1:4])

	decrypted, err := engine.DecryptEnvelope(envelope)
	require.NoError(t, err)
	require.Equal(t, inner, decrypted)
}
