// Package logger provides adapters for popular logger libraries to work with idtree's Logger interface.
//
// The adapters allow you to use your existing logger with idtree without writing boilerplate.
// Note that the standard library's slog.Logger already implements idtree.Logger directly.
//
// Example with zap:
//
//	import (
//	    "idtree"
//	    "idtree/logger"
//	    "go.uber.org/zap"
//	)
//
//	func main() {
//	    zapLogger, _ := zap.NewProduction()
//
//	    tree, err := idtree.Open("ids.idt", idtree.WithLogger(logger.NewZap(zapLogger)))
//	    if err != nil {
//	        panic(err)
//	    }
//	    defer tree.Close()
//	}
package logger
