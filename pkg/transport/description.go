package transport

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/cuemby/fuzzmux/pkg/evmerr"
)

// Description is the opaque, serializable identity of an attached client,
// used to reattach after a respawn (FromDescription) or to hand a client
// off to a child process via an environment variable (ToEnv/FromEnv).
type Description struct {
	Addr     string
	ClientID uint32
}

// DescriptionEnvKey is the default environment variable name used to
// convey a Description across a process respawn when the caller does not
// choose its own name.
const DescriptionEnvKey = "FUZZMUX_CLIENT_DESCRIPTION"

func (d Description) encode() string {
	return fmt.Sprintf("%s|%d", d.Addr, d.ClientID)
}

func decodeDescription(s string) (Description, error) {
	parts := strings.SplitN(s, "|", 2)
	if len(parts) != 2 {
		return Description{}, evmerr.New(evmerr.Serialize, "malformed client description")
	}
	id, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return Description{}, evmerr.Wrap(evmerr.Serialize, "parse client id in description", err)
	}
	return Description{Addr: parts[0], ClientID: uint32(id)}, nil
}

// ToEnv serializes d into the named environment variable.
func ToEnv(name string, d Description) error {
	return os.Setenv(name, d.encode())
}

// FromEnv reads and deserializes a Description previously written by ToEnv.
func FromEnv(name string) (Description, error) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return Description{}, evmerr.New(evmerr.IllegalState, "client description env var not set: "+name)
	}
	return decodeDescription(v)
}
