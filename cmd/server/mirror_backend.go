package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"gridnav.ai/internal/persistence/objmirror"
)

// openMirror builds the snapshot mirror from GN_MIRROR_* variables. It
// returns nil when GN_MIRROR is unset or false.
func openMirror(dataDir string) (*objmirror.Mirror, error) {
	if !envBool("GN_MIRROR", false) {
		return nil, nil
	}
	cfg := objmirror.Config{
		Endpoint:        os.Getenv("GN_MIRROR_ENDPOINT"),
		Bucket:          os.Getenv("GN_MIRROR_BUCKET"),
		Region:          os.Getenv("GN_MIRROR_REGION"),
		AccessKeyID:     os.Getenv("GN_MIRROR_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("GN_MIRROR_SECRET_ACCESS_KEY"),
	}
	client, err := objmirror.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("GN_MIRROR=true: %w", err)
	}
	return objmirror.New(client, dataDir, objmirror.Options{
		Prefix:  os.Getenv("GN_MIRROR_PREFIX"),
		Workers: envInt("GN_MIRROR_WORKERS", 2),
	}, log.StandardLogger()), nil
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
