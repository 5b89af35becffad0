package cmd

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"runtime/debug"
)

type ErrorResponse struct {
	Error string `json:"error"`
}

func RecoverFromPanic() {
	if err := recover(); err != nil {
		log.Println("=======================================")
		log.Println("xetest encountered an unexpected error, please report the issue.")
		log.Println(err)
		log.Println("=======================================")
		b := bufio.NewScanner(bytes.NewBuffer(debug.Stack()))
		for b.Scan() {
			log.Println(b.Text())
		}
		os.Exit(1)
	}
}

func printErrorJSON(w io.Writer, err error) {
	errResponse := ErrorResponse{
		Error: errors.New("something went wrong").Error(),
	}
	if err != nil {
		errResponse.Error = err.Error()
	}

	js, err := json.Marshal(errResponse)
	if err != nil {
		fmt.Fprintln(w, err)
		return
	}
	fmt.Fprintln(w, string(js))
}

func printError(w io.Writer, err error, output string, message string) {
	if output == "json" {
		printErrorJSON(w, err)
	} else {
		errorPrinter.Fprintf(w, "%s: %v\n", message, err)
	}
}

func rootFromArgs(arg string) string {
	if arg == "" {
		return "."
	}
	return arg
}
