/*
Package crypto provides signing and signature verification over the
secp256k1 curve. Messages are hashed with SHA-256 before signing;
signatures are 65 bytes (R || S || recovery id) and public keys are
exchanged in 33 byte compressed form.
*/
package crypto

type (
	// Signer signs arbitrary byte messages with a private key held in memory.
	Signer interface {
		// SignBytes hashes the data with SHA-256 and signs the digest.
		SignBytes(data []byte) ([]byte, error)
		// Verifier returns the verifier for this signer's public key.
		Verifier() (Verifier, error)
	}

	// Verifier verifies that a message was signed by the holder of a
	// specific public key.
	Verifier interface {
		// VerifyBytes hashes the data with SHA-256 and verifies the
		// signature against the digest.
		VerifyBytes(sig []byte, data []byte) error
		// MarshalPublicKey returns the compressed public key.
		MarshalPublicKey() ([]byte, error)
	}
)
