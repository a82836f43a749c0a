package pages

import (
	"html/template"
	"strings"

	"toptracks/youtube"
)

const BoardTemplate = "board.html"

var Funcs = template.FuncMap{
	"watchURL": youtube.WatchURL,
	"embedURL": youtube.EmbedURL,
	"isPath": func(s string) bool {
		return strings.HasPrefix(s, "/") || strings.HasPrefix(s, "http")
	},
}

// Templates parses every page served as HTML.
func Templates() *template.Template {
	return template.Must(template.New(BoardTemplate).Funcs(Funcs).Parse(Board))
}

var Board = `<!DOCTYPE html>
<html lang="ko">
<head>
    <meta charset="utf-8">
    <title>{{ .View.Title }}</title>
    {{- if .Refresh }}
    <meta http-equiv="refresh" content="1">
    {{- end }}
    <style>
        body {
            font-family: Arial, sans-serif;
            line-height: 1.6;
            max-width: 800px;
            margin: 0 auto;
            padding: 20px;
        }
        nav a.current { font-weight: bold; }
        .chips form { display: inline; }
        .chips button.selected { font-weight: bold; text-decoration: underline; }
        .chips img { width: 16px; height: 16px; }
        ol.rankings { list-style: none; padding: 0; }
        ol.rankings li { display: flex; gap: 12px; align-items: center; padding: 4px 0; }
        ol.rankings li.active { background: #eef; }
        ol.rankings img { width: 48px; height: 48px; }
    </style>
</head>
<body>
    <nav>
        {{- range .Boards }}
        <a href="/{{ .ID }}"{{ if eq .ID $.View.Board }} class="current"{{ end }}>{{ .Title }}</a>
        {{- end }}
    </nav>

    <h1 class="heading">{{ .View.Heading }}{{ if eq .View.Board "apple" }}<span class="date">{{ .View.Date }}</span>{{ end }}</h1>

    <div class="chips">
        {{- range .View.Chips }}
        <form method="post" action="/{{ $.View.Board }}/category">
            <input type="hidden" name="id" value="{{ .ID }}">
            <button type="submit" data-category="{{ .ID }}"{{ if .Selected }} class="selected"{{ end }}>
                {{- if isPath .Icon }}<img src="{{ .Icon }}" alt="">{{ else }}{{ .Icon }}{{ end }} {{ .Label -}}
            </button>
        </form>
        {{- end }}
    </div>

    <form class="date" method="post" action="/{{ .View.Board }}/date">
        <input type="date" name="date" value="{{ .View.Date }}">
        <button type="submit">확인</button>
    </form>
    <form class="refresh" method="post" action="/{{ .View.Board }}/refresh">
        <button type="submit">새로고침</button>
    </form>

    {{- if .ActiveTrack }}
    <div class="player">
        <iframe src="{{ embedURL .ActiveTrack }}" width="320" height="180" allow="autoplay" title="player"></iframe>
    </div>
    {{- end }}

    {{- if eq .View.Mode "loading" }}
    <p class="loading">{{ .View.Message }}</p>
    {{- else if eq .View.Mode "error" }}
    <p class="error">{{ .View.Message }}</p>
    {{- else if eq .View.Mode "empty" }}
    <p class="empty">{{ .View.Message }}</p>
    {{- if .View.Hint }}
    <p class="hint">{{ .View.Hint }}</p>
    {{- end }}
    {{- else }}
    <ol class="rankings">
        {{- range .View.Rows }}
        <li data-index="{{ .Index }}" data-ranking="{{ .Ranking }}"{{ if .Active }} class="active"{{ end }}>
            <span class="rank">{{ .Ranking }}</span>
            {{- if .Image }}
            <img src="{{ .Image }}" alt="{{ .Title }}">
            {{- end }}
            <span class="title">{{ .Title }}</span>
            <span class="artist">{{ .Artist }}</span>
            {{- if .Playable }}
            <form method="post" action="/{{ $.View.Board }}/play">
                <input type="hidden" name="index" value="{{ .Index }}">
                <button type="submit">▶</button>
            </form>
            <a class="watch" href="{{ watchURL .YoutubeID }}" target="_blank" rel="noopener">YouTube</a>
            {{- end }}
        </li>
        {{- end }}
    </ol>
    {{- end }}
</body>
</html>`
