package main

import "github.com/zhanhb/opkg-lede/cmd"

var version = "dev"

func main() {
	cmd.Execute(version)
}
