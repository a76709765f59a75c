// rotator-test exercises a running rotatord over the GS-232 protocol.
//
// The default mode runs a fixed command sequence and prints each
// response; -manual reads commands from stdin instead.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"strings"
	"time"
)

var (
	addr       = flag.String("addr", "localhost:4533", "rotator address")
	manual     = flag.Bool("manual", false, "interactive mode: type commands, q to quit")
	settle     = flag.Duration("settle", 3*time.Second, "wait after motion commands")
	cmdTimeout = flag.Duration("timeout", 5*time.Second, "per-command response timeout")
)

func send(conn net.Conn, r *bufio.Reader, cmd string) (string, error) {
	conn.SetDeadline(time.Now().Add(*cmdTimeout))
	if _, err := fmt.Fprintf(conn, "%s\n", cmd); err != nil {
		return "", err
	}
	resp, err := r.ReadString('\n')
	return strings.TrimSpace(resp), err
}

func isMotion(cmd string) bool {
	return strings.HasPrefix(cmd, "AZ") || strings.HasPrefix(cmd, "EL") || cmd == "H" || cmd == "R"
}

func runSequence(conn net.Conn, r *bufio.Reader) error {
	for _, step := range []struct {
		cmd, what string
	}{
		{"P", "initial position"},
		{"AZ180", "slew azimuth to 180°"},
		{"EL45", "raise elevation to 45°"},
		{"P", "position after move"},
		{"AZ0", "return azimuth"},
		{"EL0", "lower elevation"},
		{"H", "home both axes"},
		{"P", "final position"},
	} {
		resp, err := send(conn, r, step.cmd)
		if err != nil {
			return fmt.Errorf("%s: %w", step.cmd, err)
		}
		log.Printf("%-6s %-28s -> %s", step.cmd, step.what, resp)
		if isMotion(step.cmd) {
			time.Sleep(*settle)
		}
	}
	return nil
}

func runManual(conn net.Conn, r *bufio.Reader) error {
	fmt.Println("commands: AZxxx, ELxxx, P, S, H, R, q to quit")
	stdin := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !stdin.Scan() {
			return stdin.Err()
		}
		cmd := strings.ToUpper(strings.TrimSpace(stdin.Text()))
		if cmd == "" {
			continue
		}
		if cmd == "Q" {
			return nil
		}
		resp, err := send(conn, r, cmd)
		if err != nil {
			return err
		}
		fmt.Println(resp)
	}
}

func main() {
	flag.Parse()
	conn, err := net.DialTimeout("tcp", *addr, 5*time.Second)
	if err != nil {
		log.Fatalf("connecting to %s: %v (is rotatord running?)", *addr, err)
	}
	defer conn.Close()
	r := bufio.NewReader(conn)
	if *manual {
		err = runManual(conn, r)
	} else {
		err = runSequence(conn, r)
	}
	if err != nil {
		log.Fatal(err)
	}
	log.Print("done")
}
