package export

// Stylesheet is prepended to every exported HTML document.
const Stylesheet = `<style>
    #agent-output {font-family: "Segoe UI", sans-serif; color: #333; }

    #agent-output table {width: 100%; border-collapse: collapse; margin-top: 1rem;}
    #agent-output th,
    #agent-output td {border-top: 1px solid #ccc; border-bottom: 1px solid #ccc; border-left: none; border-right: none; padding: 10px; text-align: left;}
    #agent-output tr:nth-child(even) {background-color: #f9f9f9;}
    #agent-output tr:hover {background-color: #e6f7ff;}
    #agent-output th {background-color: #111; color: white;}

    #agent-output h1,
    #agent-output h2,
    #agent-output h3 {border-bottom: 2px solid #ddd; padding-bottom: 6px; margin-top: 1.5rem; color: #111;}
    #agent-output ul {padding-left: 1.5rem; margin-bottom: 1rem; list-style-type: disc;}
    #agent-output ul li {margin-bottom: 8px; padding-left: 0.5rem; background-color: #f7faff; border-radius: 4px; transition: background-color 0.3s ease;}
    #agent-output ul li:hover {background-color: #e6f2ff;}
    #agent-output ol {padding-left: 1.5rem; margin-bottom: 1rem; list-style-type: decimal;}
    #agent-output ol li {margin-bottom: 8px; padding-left: 0.5rem; background-color: #fffdf7; border-radius: 4px; transition: background-color 0.3s ease;}
    #agent-output ol li:hover {background-color: #fff3e0;}
    #agent-output p {font-size: 1rem; line-height: 1.7; margin-bottom: 1.2rem; padding: 0.5rem 0.75rem;}
    #agent-output pre {background-color: #f4f4f4; padding: 10px; border-radius: 6px; overflow-x: auto;}
</style>`
