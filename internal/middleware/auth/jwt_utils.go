package auth

import (
	"crypto/rsa"
	"fmt"
	"maps"
	"os"
	"slices"

	"github.com/golang-jwt/jwt/v5"
)

// LoadPublicKeysFromFiles は kid → PEMファイルパス の対応から検証用の公開鍵を読み込む
// kid の昇順に読み込み、最初に失敗した鍵のエラーを返す
func LoadPublicKeysFromFiles(keyFiles map[string]string) (map[string]*rsa.PublicKey, error) {
	publicKeys := make(map[string]*rsa.PublicKey, len(keyFiles))

	for _, kid := range slices.Sorted(maps.Keys(keyFiles)) {
		if kid == "" {
			return nil, fmt.Errorf("public key file %s has an empty kid", keyFiles[kid])
		}

		publicKey, err := loadPublicKey(keyFiles[kid])
		if err != nil {
			return nil, fmt.Errorf("kid=%s: %w", kid, err)
		}
		publicKeys[kid] = publicKey
	}

	return publicKeys, nil
}

func loadPublicKey(path string) (*rsa.PublicKey, error) {
	pemData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read public key file: %w", err)
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(pemData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key %s: %w", path, err)
	}
	return publicKey, nil
}
