package cmd

import (
	"math/rand"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/averres/proxyfan/internal/gen"
)

var (
	genCount int
	genSeed  int64
)

var genCmd = &cobra.Command{
	Use:   "gen <output-file>",
	Short: "Generate a random item list for testing",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		seed := genSeed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng := rand.New(rand.NewSource(seed))
		if err := gen.WriteFile(rng, args[0], genCount); err != nil {
			return err
		}
		logger.Info("item list generated",
			zap.String("path", args[0]),
			zap.Int("count", genCount),
		)
		return nil
	},
}

func init() {
	genCmd.Flags().IntVar(&genCount, "count", 100, "number of items to generate")
	genCmd.Flags().Int64Var(&genSeed, "seed", 0, "random seed (0 uses the current time)")
	rootCmd.AddCommand(genCmd)
}
