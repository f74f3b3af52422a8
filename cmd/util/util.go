package util

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dCoord/rpc/common"
	"github.com/cespare/xxhash/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50

	// EnvPrefix is the prefix of all environment variables (DCOORD_<FLAG>)
	EnvPrefix = "dcoord"
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and makes viper read DCOORD_ environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Client configuration
// --------------------------------------------------------------------------

// SetupClientFlags adds the connection flags to a client command group
func SetupClientFlags(cmd *cobra.Command) {
	key := "timeout"
	cmd.PersistentFlags().Int(key, 10, WrapString("The timeout in seconds of the client"))

	key = "endpoints"
	cmd.PersistentFlags().String(key, "http://localhost:8080", WrapString("The address of the dCoord server. Multiple endpoints can be specified as a comma-separated list and are used round-robin"))

	key = "retries"
	cmd.PersistentFlags().Int(key, 3, WrapString("How many times to try a request that failed because a server was unreachable or unavailable"))

	key = "caller"
	cmd.PersistentFlags().String(key, defaultCaller(), WrapString("The caller identity sent to the server. Locks acquired by this client are owned by it"))
}

func defaultCaller() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "anonymous"
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() common.ClientConfig {
	endpoints := make([]string, 0)
	for _, e := range strings.Split(viper.GetString("endpoints"), ",") {
		if e = strings.TrimSpace(e); e != "" {
			endpoints = append(endpoints, e)
		}
	}
	return common.ClientConfig{
		Endpoints:     endpoints,
		TimeoutSecond: viper.GetInt("timeout"),
		RetryCount:    viper.GetInt("retries"),
		Caller:        viper.GetString("caller"),
	}
}

// --------------------------------------------------------------------------
// Cluster helpers
// --------------------------------------------------------------------------

// NodeID converts a replica name into a raft replica id. Numeric names are
// used as they are, all others are hashed.
func NodeID(name string) uint64 {
	name = strings.TrimSpace(name)
	if id, err := strconv.ParseUint(name, 10, 64); err == nil && id > 0 {
		return id
	}
	return xxhash.Sum64String(name)
}

// ParseClusterMembers parses 'node-1=host:port,node-2=host:port'.
func ParseClusterMembers(s string) (map[uint64]string, error) {
	members := make(map[uint64]string)
	for _, member := range strings.Split(s, ",") {
		if strings.TrimSpace(member) == "" {
			continue
		}
		parts := strings.Split(member, "=")
		if len(parts) != 2 || strings.TrimSpace(parts[1]) == "" {
			return nil, fmt.Errorf("invalid cluster member format: %s (expected ID=address)", member)
		}
		id := NodeID(parts[0])
		if _, dup := members[id]; dup {
			return nil, fmt.Errorf("duplicate cluster member %s", parts[0])
		}
		members[id] = strings.TrimSpace(parts[1])
	}
	return members, nil
}

// --------------------------------------------------------------------------
// Output
// --------------------------------------------------------------------------

// PrintJSON writes v indented to stdout
func PrintJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
