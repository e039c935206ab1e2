package api

import "strings"

// pageHTML is the now-playing page. It renders views pushed over the websocket
// and reports document visibility back so polling pauses with the tab.
const pageHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Now Playing</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, Cantarell, sans-serif;
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
            margin: 0;
            background: #121212;
            color: #ffffff;
        }
        .card {
            text-align: center;
            background: #181818;
            padding: 2rem;
            border-radius: 12px;
            width: 360px;
        }
        #album-art {
            width: 300px;
            height: 300px;
            border-radius: 8px;
            object-fit: cover;
            background: #282828;
        }
        #song-title { font-size: 1.3rem; margin: 1rem 0 0.25rem; }
        #song-title a { color: inherit; text-decoration: none; }
        #artist-name, #playback-status { color: #b3b3b3; margin: 0.25rem 0; }
        #lyrics { white-space: pre-wrap; text-align: left; color: #b3b3b3; max-height: 240px; overflow-y: auto; }
        button {
            background: #1db954;
            color: #000;
            border: 0;
            border-radius: 500px;
            padding: 0.75rem 2rem;
            font-weight: 700;
            cursor: pointer;
        }
        #logout-btn { background: transparent; color: #b3b3b3; padding: 0.5rem; font-weight: 400; }
        [hidden] { display: none !important; }
    </style>
</head>
<body>
    <div class="card">
        <button id="login-btn" hidden>Log in with Spotify</button>
        <div id="player-section" hidden>
            <img id="album-art" alt="">
            <p id="song-title"></p>
            <p id="artist-name"></p>
            <p id="playback-status"></p>
            <div id="lyrics" hidden></div>
            <button id="logout-btn">Log out</button>
        </div>
        <p id="connection" hidden>Reconnecting...</p>
    </div>
    <script>
        const wsPath = "{{WS_PATH}}";
        const el = {
            login: document.getElementById("login-btn"),
            player: document.getElementById("player-section"),
            title: document.getElementById("song-title"),
            artist: document.getElementById("artist-name"),
            art: document.getElementById("album-art"),
            status: document.getElementById("playback-status"),
            lyrics: document.getElementById("lyrics"),
            logout: document.getElementById("logout-btn"),
            connection: document.getElementById("connection")
        };
        let socket = null;

        el.login.onclick = function () { window.location.href = "/login"; };
        el.logout.onclick = function () { fetch("/logout", { method: "POST" }); };

        function render(v) {
            el.login.hidden = v.logged_in;
            el.player.hidden = !v.logged_in;
            if (!v.logged_in) {
                return;
            }
            el.title.textContent = "";
            if (v.track_url) {
                const link = document.createElement("a");
                link.href = v.track_url;
                link.target = "_blank";
                link.rel = "noopener";
                link.textContent = v.title;
                el.title.appendChild(link);
            } else {
                el.title.textContent = v.title;
            }
            el.artist.textContent = v.artists || "";
            el.status.textContent = v.status_text || "";
            if (v.artwork_url) {
                el.art.src = v.artwork_url;
            } else {
                el.art.removeAttribute("src");
            }
            el.lyrics.hidden = !v.lyrics;
            el.lyrics.textContent = v.lyrics || "";
        }

        function send(msg) {
            if (socket && socket.readyState === WebSocket.OPEN) {
                socket.send(JSON.stringify(msg));
            }
        }

        function reportVisibility() {
            send({ type: "visibility", hidden: document.hidden });
        }

        function connect() {
            if (!wsPath) {
                fetch("/api/now-playing").then(function (r) { return r.json(); }).then(render);
                return;
            }
            const scheme = window.location.protocol === "https:" ? "wss://" : "ws://";
            socket = new WebSocket(scheme + window.location.host + wsPath);
            socket.onopen = function () {
                el.connection.hidden = true;
                reportVisibility();
            };
            socket.onmessage = function (event) {
                const msg = JSON.parse(event.data);
                if (msg.type === "view" && msg.view) {
                    render(msg.view);
                }
            };
            socket.onclose = function () {
                el.connection.hidden = false;
                setTimeout(connect, 2000);
            };
        }

        document.addEventListener("visibilitychange", function () {
            reportVisibility();
            if (!document.hidden) {
                send({ type: "refresh" });
            }
        });
        connect();
    </script>
</body>
</html>`

func renderPage(wsPath string) string {
	return strings.Replace(pageHTML, "{{WS_PATH}}", wsPath, 1)
}
