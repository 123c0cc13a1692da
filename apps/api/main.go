// Command api serves the score and attendance reports over HTTP.
package main

func main() {
	startManual()
}
