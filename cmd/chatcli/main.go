// Command chatcli talks to the clinic assistant from a terminal.
package main

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	"github.com/doctoruncle/clinic-assistant/internal/chatbot"
	appconfig "github.com/doctoruncle/clinic-assistant/internal/config"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := appconfig.Load()
	personalizer, err := chatbot.ParsePersonalizer(cfg.Personalization)
	if err != nil {
		log.Fatal(err)
	}

	engine := chatbot.NewEngine(chatbot.WithPersonalizer(personalizer))
	if err := run(engine, os.Stdin, os.Stdout); err != nil {
		log.Fatal(err)
	}
}

// run reads one message per line until EOF or /quit. /clear restarts the
// conversation. Blank lines are ignored.
func run(engine *chatbot.Engine, in io.Reader, out io.Writer) error {
	transcript := engine.Start()
	printBot(out, transcript)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		text := strings.TrimSpace(scanner.Text())
		switch text {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/clear":
			transcript = engine.Clear(transcript)
			printBot(out, transcript)
			continue
		}

		var reply string
		reply, transcript = engine.Respond(transcript, text)
		fmt.Fprintf(out, "bot: %s\n", reply)
	}
}

func printBot(out io.Writer, t chatbot.Transcript) {
	if last, ok := t.Last(); ok {
		fmt.Fprintf(out, "bot: %s\n", last.Text)
	}
}
