package spotify

// LoginSuccessHtml is displayed by the command-line callback server once the
// authorization code has been received. The window closes itself after a few seconds.
const LoginSuccessHtml = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Logged in - NowPlaying</title>
    <style>
        * {
            box-sizing: border-box;
        }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Oxygen, Ubuntu, Cantarell, sans-serif;
            display: flex;
            justify-content: center;
            align-items: center;
            min-height: 100vh;
            margin: 0;
            background: #121212;
            color: #ffffff;
            padding: 1rem;
        }
        .card {
            text-align: center;
            background: #181818;
            padding: 2.5rem 2rem;
            border-radius: 12px;
            max-width: 420px;
            width: 100%;
        }
        .badge {
            width: 56px;
            height: 56px;
            margin: 0 auto 1rem;
            border-radius: 50%;
            background: #1db954;
            display: flex;
            align-items: center;
            justify-content: center;
            font-size: 1.75rem;
            color: #121212;
        }
        h1 {
            font-size: 1.4rem;
            margin: 0 0 0.5rem;
        }
        p {
            color: #b3b3b3;
            margin: 0;
        }
    </style>
</head>
<body>
    <div class="card">
        <div class="badge">&#10003;</div>
        <h1>Logged in with Spotify</h1>
        <p>You can close this window and return to the terminal.</p>
    </div>
    <script>
        setTimeout(function () { window.close(); }, 5000);
    </script>
</body>
</html>`

// LoginFailureHtml is displayed when the redirect carried an error or was malformed.
// {{MESSAGE}} is replaced with an escaped description.
const LoginFailureHtml = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Login failed - NowPlaying</title>
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
            padding: 2.5rem 2rem;
            border-radius: 12px;
            max-width: 420px;
        }
        h1 {
            font-size: 1.4rem;
            color: #f15e6c;
        }
        p {
            color: #b3b3b3;
        }
    </style>
</head>
<body>
    <div class="card">
        <h1>Spotify login failed</h1>
        <p>{{MESSAGE}}</p>
        <p>Run the login command again to retry.</p>
    </div>
</body>
</html>`
