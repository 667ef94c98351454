package main

import (
	"os"

	"trading-bot-fleet/pkg/logger"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run выполняет команду и возвращает код завершения процесса
func run(args []string) int {
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		logger.GetLogger().Error("❌ %v", err)
		return 1
	}
	return 0
}
