// yhal はアフリカ料理の画像認識・栄養計算APIサーバー。
//
// 使い方:
//
//	yhal [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/yhal/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "yhal: %v\n", err)
		os.Exit(1)
	}
}
