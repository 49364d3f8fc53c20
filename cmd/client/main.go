package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/SphrGhfri/roomchat/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/manifoldco/promptui"
)

var (
	addr  = flag.String("addr", "localhost:8080", "http service address")
	token = flag.String("token", "", "access token; prompts for a username when empty")
)

const help = `Commands:
  /join <room> [password]   join a public room, or a private one with a password
  /leave <room>             leave a room
  /room <room>              switch the room plain lines are sent to
  /dm <user>                open a direct channel
  /undm <user>              close a direct channel
  /msg <user> <text>        send a direct message
  /rooms                    list rooms
  /users                    list active users
  /quit                     exit`

type session struct {
	conn     *websocket.Conn
	roomType string
	roomID   string
}

func main() {
	flag.Parse()

	query := url.Values{}
	if *token != "" {
		query.Set("token", *token)
	} else {
		username, err := (&promptui.Prompt{
			Label: "Username",
			Validate: func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("username cannot be empty")
				}
				return nil
			},
		}).Run()
		if err != nil {
			log.Fatalf("prompt: %v", err)
		}
		query.Set("username", strings.TrimSpace(username))
	}

	conn := connectWebSocket(query)
	defer conn.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	done := make(chan struct{})
	go readMessages(conn, done)

	s := &session{conn: conn}
	fmt.Println(help)
	writeMessages(s, interrupt, done)
}

func connectWebSocket(query url.Values) *websocket.Conn {
	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws", RawQuery: query.Encode()}
	log.Printf("Connecting to %s", u.Host)

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("Failed to connect to WebSocket server: %v", err)
	}
	log.Println("Connected to WebSocket server.")
	return conn
}

func readMessages(conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			log.Printf("Error reading message: %v", err)
			return
		}

		var p domain.Payload
		if err := json.Unmarshal(message, &p); err != nil {
			log.Printf("Error parsing message: %v", err)
			continue
		}
		fmt.Println(render(p))
	}
}

func render(p domain.Payload) string {
	switch p.Type {
	case domain.PayloadError:
		return "! " + p.Content
	case domain.PayloadSystem, domain.PayloadUsers:
		return "* " + p.Content
	case domain.PayloadRooms:
		var rooms map[domain.RoomType][]domain.RoomInfo
		if err := json.Unmarshal([]byte(p.Content), &rooms); err != nil {
			return "* " + p.Content
		}
		var b strings.Builder
		for _, rt := range []domain.RoomType{domain.RoomTypePublic, domain.RoomTypePrivate} {
			for _, r := range rooms[rt] {
				fmt.Fprintf(&b, "* %s %s (%s) members=%d\n", rt, r.ID, r.Name, r.MemberCount)
			}
		}
		return strings.TrimSuffix(b.String(), "\n")
	case domain.PayloadDirect:
		return fmt.Sprintf("[%s] (dm) %s: %s", p.Timestamp, p.Sender, p.Content)
	case domain.PayloadHistorical:
		return fmt.Sprintf("[%s] #%s (history) %s: %s", p.Timestamp, p.RoomID, p.Sender, p.Content)
	default:
		return fmt.Sprintf("[%s] #%s %s: %s", p.Timestamp, p.RoomID, p.Sender, p.Content)
	}
}

func writeMessages(s *session, interrupt chan os.Signal, done chan struct{}) {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	for {
		select {
		case <-done:
			return
		case <-interrupt:
			log.Println("Interrupt received, closing connection...")
			s.close()
			return
		case line, ok := <-lines:
			if !ok {
				s.close()
				return
			}
			frame, quit, err := s.parse(strings.TrimSpace(line))
			if quit {
				s.close()
				return
			}
			if err != nil {
				fmt.Println("! " + err.Error())
				continue
			}
			if frame == nil {
				continue
			}
			if err := s.conn.WriteJSON(frame); err != nil {
				log.Printf("Error sending message: %v", err)
				return
			}
		}
	}
}

// parse turns an input line into a frame. A nil frame with no error means nothing to send.
func (s *session) parse(line string) (*domain.Frame, bool, error) {
	if line == "" {
		return nil, false, nil
	}
	if !strings.HasPrefix(line, "/") {
		if s.roomID == "" {
			return nil, false, errors.New("join a room first, see /join")
		}
		return &domain.Frame{Type: domain.FrameChatMessage, RoomType: s.roomType, RoomID: s.roomID, Content: line}, false, nil
	}

	fields := strings.Fields(line)
	args := fields[1:]
	switch fields[0] {
	case "/quit":
		return nil, true, nil
	case "/help":
		fmt.Println(help)
		return nil, false, nil
	case "/rooms":
		return &domain.Frame{Type: domain.FrameListRooms}, false, nil
	case "/users":
		return &domain.Frame{Type: domain.FrameListUsers}, false, nil
	case "/join":
		if len(args) == 0 {
			return nil, false, errors.New("usage: /join <room> [password]")
		}
		f := &domain.Frame{Type: domain.FrameJoinRoom, RoomType: string(domain.RoomTypePublic), RoomID: args[0]}
		if len(args) > 1 {
			f.RoomType = string(domain.RoomTypePrivate)
			f.Password = args[1]
		}
		s.roomType, s.roomID = f.RoomType, f.RoomID
		return f, false, nil
	case "/room":
		if len(args) == 0 {
			return nil, false, errors.New("usage: /room <room>")
		}
		s.roomID = args[0]
		return nil, false, nil
	case "/leave":
		if len(args) == 0 {
			return nil, false, errors.New("usage: /leave <room>")
		}
		rt := string(domain.RoomTypePublic)
		if args[0] == s.roomID {
			rt = s.roomType
			s.roomID = ""
		}
		return &domain.Frame{Type: domain.FrameLeaveRoom, RoomType: rt, RoomID: args[0]}, false, nil
	case "/dm", "/undm":
		if len(args) == 0 {
			return nil, false, fmt.Errorf("usage: %s <user>", fields[0])
		}
		ft := domain.FrameOpenDirect
		if fields[0] == "/undm" {
			ft = domain.FrameCloseDirect
		}
		return &domain.Frame{Type: ft, RecipientID: args[0]}, false, nil
	case "/msg":
		if len(args) < 2 {
			return nil, false, errors.New("usage: /msg <user> <text>")
		}
		return &domain.Frame{
			Type:        domain.FrameDirectMessage,
			RecipientID: args[0],
			Content:     strings.Join(args[1:], " "),
		}, false, nil
	}
	return nil, false, fmt.Errorf("unknown command %s", fields[0])
}

func (s *session) close() {
	err := s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		log.Printf("Error during close: %v", err)
	}
}
