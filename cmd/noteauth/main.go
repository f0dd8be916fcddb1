package main

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/nsnotes/noteauth/internal/app"
)

func main() {
	// .envファイルがあれば読み込む。本番環境では環境変数を直接設定する。
	_ = godotenv.Load()

	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
