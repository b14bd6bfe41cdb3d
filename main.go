package main

import (
	"github.com/M-Abd-ElBaset/hls-audio-service/cmd"
)

func main() {
	cmd.Execute()
}
