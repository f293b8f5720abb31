package preview

const indexHTML = `<!doctype html>
<html>
<head>
<meta charset="utf-8">
<title>scenereel preview</title>
<style>
  html, body { margin: 0; height: 100%; background: #000; overflow: hidden; }
  #frame { width: 100vw; height: 100vh; object-fit: contain; display: block; }
  #export { position: fixed; top: 12px; right: 12px; padding: 8px 14px; font: 14px sans-serif; }
  #status { position: fixed; bottom: 12px; left: 12px; color: #ccc; font: 12px monospace; }
</style>
</head>
<body>
<img id="frame" alt="">
<button id="export">Export video</button>
<div id="status">connecting</div>
<script>
const img = document.getElementById("frame");
const status = document.getElementById("status");
const ws = new WebSocket((location.protocol === "https:" ? "wss://" : "ws://") + location.host + "/ws");
ws.binaryType = "blob";
let url = null;

function resize() {
  if (ws.readyState !== WebSocket.OPEN) return;
  ws.send(JSON.stringify({
    type: "resize",
    width: window.innerWidth,
    height: window.innerHeight,
    dpr: window.devicePixelRatio || 1,
  }));
}

ws.onopen = () => { status.textContent = "live"; resize(); };
ws.onclose = () => { status.textContent = "disconnected"; };
ws.onmessage = (e) => {
  if (typeof e.data === "string") {
    const ev = JSON.parse(e.data);
    status.textContent = ev.kind === "success"
      ? "exported " + ev.frames + " frames to " + ev.path
      : "export " + ev.kind + (ev.error ? ": " + ev.error : "");
    if (ev.url) {
      const a = document.createElement("a");
      a.href = ev.url;
      a.download = ev.path ? ev.path.split(/[\\/]/).pop() : "animation.mp4";
      a.textContent = " download";
      status.appendChild(a);
      a.click();
    }
    return;
  }
  if (url) URL.revokeObjectURL(url);
  url = URL.createObjectURL(e.data);
  img.src = url;
};
window.addEventListener("resize", resize);
document.getElementById("export").onclick = () => {
  status.textContent = "exporting";
  ws.send(JSON.stringify({ type: "export" }));
};
</script>
</body>
</html>
`
