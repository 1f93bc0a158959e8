package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/FranksOps/prospector/internal/cache"
	"github.com/spf13/cobra"
)

// NewCacheCmd creates the cache command group.
func NewCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the response cache",
	}
	cmd.AddCommand(newCacheKeyCmd())
	return cmd
}

func newCacheKeyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key <namespace/name>",
		Short: "Print the file a logical cache key is stored in",
		Long: `Print the file a logical cache key is stored in, relative to the cache
directory. The namespace is everything up to the last slash unless --namespace
is given, in which case the argument is the name alone.

Examples:
  prospector cache key serper/best widgets
  prospector cache key serper/site:example.com
  prospector cache key ahrefs/domain-rating/example.com
  prospector cache key --namespace serper "a/b testing"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ns, _ := cmd.Flags().GetString("namespace")
			key, err := parseKey(ns, args[0])
			if err != nil {
				return err
			}
			p, err := key.Path()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), filepath.FromSlash(p))
			return nil
		},
	}
	cmd.Flags().String("namespace", "", "Cache namespace, e.g. serper or ahrefs/domain-rating")
	return cmd
}

// parseKey splits a logical key. Without an explicit namespace, a "site:"
// scope in the name is kept intact.
func parseKey(namespace, arg string) (cache.Key, error) {
	if namespace != "" {
		return cache.Key{Namespace: namespace, Name: arg}, nil
	}
	head := arg
	if i := strings.Index(arg, "site:"); i >= 0 {
		head = arg[:i]
	}
	i := strings.LastIndexByte(head, '/')
	if i <= 0 || i == len(arg)-1 {
		return cache.Key{}, fmt.Errorf("%w: %q: want <namespace>/<name>", cache.ErrInvalidKey, arg)
	}
	return cache.Key{Namespace: arg[:i], Name: arg[i+1:]}, nil
}
