package configs

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// HKDF info labels. Changing any of these breaks interop with every peer.
const (
	RootKeyInfo                = "RootKey"
	DirectionKeyInfoFormat     = "DirKey_%s_%s"        // sessionId, senderId
	MessageKeyInfoFormat       = "MessageKey_%s_%d"    // sessionId, messageNumber
	LegacyMessageKeyInfoFormat = "MessageKey_%s_%s_%d" // recipientId, "out", messageNumber
	LegacyChainInfoFormat      = "LegacyChain_%s"      // initiator|responder
)

// Header versions and key generation defaults.
const (
	ProtocolVersion       = "3"
	LegacyVersionAAD      = "2"
	LegacyVersionNoAAD    = "1"
	SessionIDSeparator    = "_"
	DefaultOneTimePrekeys = 50
	DefaultSignedPrekeyID = 1
	DefaultFirstOneTimeID = 1
)

var (
	ServerAddress   = "localhost:8080"
	RedisAddress    = "localhost:6379"
	PublishKeysPath = "/keys"
	WebSocketPath   = "/ws"

	// Keystore keys

	SessionKeyPrefix        = "session_"
	IdentityKeyName         = "identity_key"
	SignedPrekeyName        = "signed_prekey"
	OneTimePrekeyPrefix     = "one_time_prekey_"
	OneTimePrekeyNextIDName = "one_time_prekey_next_id"

	// Redis keys

	ClientKeystoreKey       = "client:keystore:%s"
	ServerMessageQueueKey   = "server:messages:%s"
	ServerUserPubKey        = "publicKey:%s"
	ServerOneTimePrekeysKey = "server:prekeys:%s"
)

// Config is the runtime configuration shared by the client and server binaries.
type Config struct {
	ServerAddress          string
	RedisAddress           string
	KeystoreBackend        string
	KeystorePath           string
	KeystorePassphrase     string
	LogLevel               string
	VerifyPrekeySignatures bool
	ServerStore            string
}

// Load reads the given dotenv files (missing files are ignored) and then
// the process environment on top of the package defaults.
func Load(files ...string) (*Config, error) {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		ServerAddress:   getenv("SIGNAL_SERVER_ADDRESS", ServerAddress),
		RedisAddress:    getenv("REDIS_ADDRESS", RedisAddress),
		KeystoreBackend: strings.ToLower(getenv("KEYSTORE_BACKEND", "file")),
		KeystorePath:    getenv("KEYSTORE_PATH", ""),
		LogLevel:        getenv("LOG_LEVEL", "info"),
		ServerStore:     strings.ToLower(getenv("SERVER_STORE", "redis")),
	}
	cfg.KeystorePassphrase = os.Getenv("KEYSTORE_PASSPHRASE")

	if v := os.Getenv("VERIFY_PREKEY_SIGNATURES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, err
		}
		cfg.VerifyPrekeySignatures = b
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}
